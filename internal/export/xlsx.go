// Package export 把提取结果写成表格，行格式与页面导出一致。
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"resume-extractor/internal/types"

	"github.com/xuri/excelize/v2"
)

const (
	LangZH = "zh"
	LangEN = "en"

	// SheetName 导出文件唯一的工作表
	SheetName = "Sheet1"

	entrySeparator = "; "
	// ContentType xlsx 的 MIME 类型
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ErrBadSheet 读取的表格缺少表头或列数不符
var ErrBadSheet = errors.New("表格格式不正确")

var headers = map[string][]string{
	LangZH: {"序号", "姓名", "自我评价", "公司经历", "毕业学校"},
	LangEN: {"Index", "Name", "Self Assessment", "Companies", "Graduate Schools"},
}

var filePrefixes = map[string]string{
	LangZH: "简历关键信息",
	LangEN: "Resume_Key_Info",
}

// NormalizeLang 只认 en，其余按中文处理
func NormalizeLang(lang string) string {
	if strings.EqualFold(strings.TrimSpace(lang), LangEN) {
		return LangEN
	}
	return LangZH
}

// Headers 表头
func Headers(lang string) []string {
	h := headers[NormalizeLang(lang)]
	return append([]string(nil), h...)
}

// Filename 例如 简历关键信息-202406011530.xlsx
func Filename(lang string, now time.Time) string {
	return fmt.Sprintf("%s-%s.xlsx", filePrefixes[NormalizeLang(lang)], now.Format("200601021504"))
}

// FormatEntries 每段经历写成 "name (duration)"，以 "; " 连接
func FormatEntries(entries []types.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s (%s)", e.Name, e.Duration))
	}
	return strings.Join(parts, entrySeparator)
}

// ParseEntries 是 FormatEntries 的逆过程；名称或时间段中含分隔符时无法还原
func ParseEntries(s string) []types.Entry {
	entries := []types.Entry{}
	if strings.TrimSpace(s) == "" {
		return entries
	}
	for _, part := range strings.Split(s, entrySeparator) {
		entries = append(entries, parseEntry(part))
	}
	return entries
}

func parseEntry(part string) types.Entry {
	if strings.HasSuffix(part, ")") {
		if open := strings.LastIndex(part, " ("); open >= 0 {
			return types.Entry{Name: part[:open], Duration: part[open+2 : len(part)-1]}
		}
	}
	return types.Entry{Name: part}
}

// Row 一条记录对应的一行，index 从1开始
func Row(index int, rec types.CandidateRecord) []string {
	return []string{
		strconv.Itoa(index),
		rec.Name,
		rec.SelfAssessment,
		FormatEntries(rec.Companies),
		FormatEntries(rec.GraduateSchools),
	}
}

// WriteXLSX 把记录按顺序写入 w
func WriteXLSX(w io.Writer, records []types.CandidateRecord, lang string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := setRow(f, 1, Headers(lang)); err != nil {
		return err
	}
	for i, rec := range records {
		if err := setRow(f, i+2, Row(i+1, rec)); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("写出xlsx失败: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
		return fmt.Errorf("写入第%d行失败: %w", row, err)
	}
	return nil
}

// ReadXLSX 读回 WriteXLSX 生成的表格
func ReadXLSX(r io.Reader) ([]types.CandidateRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("打开xlsx失败: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("读取工作表失败: %w", err)
	}
	if len(rows) == 0 || len(rows[0]) < len(headers[LangZH]) {
		return nil, ErrBadSheet
	}

	records := make([]types.CandidateRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		// GetRows 会省略行尾的空单元格
		for len(row) < len(headers[LangZH]) {
			row = append(row, "")
		}
		records = append(records, types.CandidateRecord{
			Name:            row[1],
			SelfAssessment:  row[2],
			Companies:       ParseEntries(row[3]),
			GraduateSchools: ParseEntries(row[4]),
		})
	}
	return records, nil
}
