package httpapi

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"smartwake/internal/models"

	"github.com/xuri/excelize/v2"
)

// MetricsExportHeader 指标导出表头
var MetricsExportHeader = []string{
	"Metric",
	"Value",
}

// RecommendationsHeader 建议页表头
var RecommendationsHeader = []string{
	"#",
	"Recommendation",
}

// GenerateMetricsExport 生成闹钟效果指标 Excel 文件
// 第一页为指标汇总，第二页为调优建议
func GenerateMetricsExport(m *models.SmartAlarmMetrics) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	metricsSheet := "Alarm Metrics"
	index, err := f.NewSheet(metricsSheet)
	if err != nil {
		f.Close() // Close on error
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	recSheet := "Recommendations"
	if _, err := f.NewSheet(recSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")

	// 设置默认活动工作表
	f.SetActiveSheet(index)

	// 设置表头样式
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeSheetHeader(f, metricsSheet, MetricsExportHeader, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSheetHeader(f, recSheet, RecommendationsHeader, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	// 设置列宽
	if err := f.SetColWidth(metricsSheet, "A", "A", 30); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(metricsSheet, "B", "B", 40); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(recSheet, "A", "A", 6); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(recSheet, "B", "B", 80); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	// 写入指标行
	rows := [][2]any{
		{"Alarm ID", m.AlarmID},
		{"Window Days", m.WindowDays},
		{"Average Wake-Up Difficulty", fmt.Sprintf("%.2f / 5", m.AverageWakeUpDifficulty)},
		{"Adaptation Success Rate", fmt.Sprintf("%.0f%%", m.AdaptationSuccessRate*100)},
		{"User Satisfaction", fmt.Sprintf("%.0f%%", m.UserSatisfaction*100)},
		{"Sleep Quality Trend", formatQualityTrend(m.SleepQualityTrend)},
		{"Most Effective Conditions", formatConditionTypes(m.MostEffectiveConditions)},
		{"Generated At", m.GeneratedAt.Format("2006-01-02 15:04:05")},
	}
	for rowIdx, pair := range rows {
		row := rowIdx + 2 // 从第2行开始（第1行是表头）
		if err := setMetricsCell(f, metricsSheet, 1, row, pair[0]); err != nil {
			f.Close()
			return nil, err
		}
		if err := setMetricsCell(f, metricsSheet, 2, row, pair[1]); err != nil {
			f.Close()
			return nil, err
		}
	}

	// 写入建议行
	for recIdx, rec := range m.Recommendations {
		row := recIdx + 2
		if err := setMetricsCell(f, recSheet, 1, row, recIdx+1); err != nil {
			f.Close()
			return nil, err
		}
		if err := setMetricsCell(f, recSheet, 2, row, rec); err != nil {
			f.Close()
			return nil, err
		}
	}

	// 冻结表头
	if err := f.SetPanes(metricsSheet, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	// Write to bytes buffer
	// Note: File must remain open during Write operation
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}

	// Close file after writing
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return buf.Bytes(), nil
}

// writeSheetHeader 写入表头并套用样式
func writeSheetHeader(f *excelize.File, sheet string, headers []string, style int) error {
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	return nil
}

// setMetricsCell 设置单元格值
func setMetricsCell(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, col, err)
	}
	return nil
}

// formatQualityTrend 睡眠质量序列格式化为 "6 -> 7 -> 8"
func formatQualityTrend(trend []int) string {
	if len(trend) == 0 {
		return "no data"
	}
	parts := make([]string, 0, len(trend))
	for _, q := range trend {
		parts = append(parts, strconv.Itoa(q))
	}
	return strings.Join(parts, " -> ")
}

// formatConditionTypes 条件类型列表格式化为逗号分隔
func formatConditionTypes(types []models.ConditionType) string {
	if len(types) == 0 {
		return "no data"
	}
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, string(t))
	}
	return strings.Join(parts, ", ")
}
