// reader.go
package file

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"PowerPlantCube/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ReadOptions 读取选项
type ReadOptions struct {
	SheetName     string   // xlsx 工作表，为空时取第一个
	Charset       string   // csv 编码
	Delimiter     rune     // csv 分隔符
	MissingValues []string // 视为缺失值的文本
	Aliases       map[string]string
}

// ReadTable 按扩展名读取 csv 或 xlsx 为 DataFrame，所有列均为 String 类型
func ReadTable(filePath string, opts ReadOptions) (dataframe.DataFrame, error) {
	var (
		df  dataframe.DataFrame
		err error
	)
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".xlsx", ".xlsm":
		df, err = ReadXLSX(filePath, opts)
	default:
		var f *os.File
		f, err = os.Open(filePath)
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("failed to open %s: %w", filePath, err)
		}
		defer f.Close()
		df, err = ReadCSV(f, opts)
	}
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	return renameColumns(df, opts.Aliases), nil
}

// ReadCSV 读取 csv，表头必需
func ReadCSV(r io.Reader, opts ReadOptions) (dataframe.DataFrame, error) {
	dec, err := decoder(opts.Charset)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	// gota 读取前先整体解码，避免 BOM 或多字节编码混入表头
	data, err := io.ReadAll(transform.NewReader(r, dec))
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to decode input: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("input is empty")
	}

	delimiter := opts.Delimiter
	if delimiter == 0 {
		delimiter = ','
	}

	df := dataframe.ReadCSV(bytes.NewReader(data),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithDelimiter(delimiter),
		dataframe.NaNValues(missingValues(opts.MissingValues)),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, df.Err
	}
	return df, nil
}

// ReadXLSX 使用 tealeg/xlsx 读取工作表，第一行为表头
func ReadXLSX(filePath string, opts ReadOptions) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("xlsx open file false: %w", err)
	}

	if len(xlFile.Sheets) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("excel文件中没有工作表")
	}
	sheet := xlFile.Sheets[0]
	if opts.SheetName != "" {
		s, ok := xlFile.Sheet[opts.SheetName]
		if !ok {
			return dataframe.DataFrame{}, fmt.Errorf("sheet %q not found", opts.SheetName)
		}
		sheet = s
	}

	return convertSheetToDataFrame(sheet, missingValues(opts.MissingValues))
}

// convertSheetToDataFrame 将xlsx.Sheet转换为dataframe.DataFrame
func convertSheetToDataFrame(sheet *xlsx.Sheet, nanValues []string) (dataframe.DataFrame, error) {
	if len(sheet.Rows) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("sheet %s has no rows", sheet.Name)
	}

	// 第一行是标题行
	var headers []string
	for _, cell := range sheet.Rows[0].Cells {
		headers = append(headers, strings.TrimSpace(cell.String()))
	}
	for len(headers) > 0 && headers[len(headers)-1] == "" {
		headers = headers[:len(headers)-1]
	}
	if len(headers) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("sheet %s has an empty header row", sheet.Name)
	}

	// 准备数据列
	columns := make([][]string, len(headers))
	for i := range columns {
		columns[i] = make([]string, 0, len(sheet.Rows)-1)
	}

	// 填充数据(从第二行开始)，短行补缺失值
	for _, row := range sheet.Rows[1:] {
		if row == nil || isBlankRow(row) {
			continue
		}
		for i := range headers {
			value := ""
			if i < len(row.Cells) && row.Cells[i] != nil {
				value = row.Cells[i].String()
			}
			if utils.Contains(nanValues, value) {
				value = "NaN"
			}
			columns[i] = append(columns[i], value)
		}
	}

	seriesList := make([]series.Series, len(headers))
	for i, colName := range headers {
		seriesList[i] = series.New(columns[i], series.String, colName)
	}

	df := dataframe.New(seriesList...)
	if df.Err != nil {
		return dataframe.DataFrame{}, df.Err
	}
	return df, nil
}

func isBlankRow(row *xlsx.Row) bool {
	for _, cell := range row.Cells {
		if cell != nil && strings.TrimSpace(cell.String()) != "" {
			return false
		}
	}
	return true
}

func renameColumns(df dataframe.DataFrame, aliases map[string]string) dataframe.DataFrame {
	for _, name := range df.Names() {
		target, ok := aliases[name]
		if !ok || target == "" || target == name || utils.HasColumn(df, target) {
			continue
		}
		df = df.Rename(target, name)
	}
	return df
}

func decoder(charset string) (transform.Transformer, error) {
	var enc encoding.Encoding
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return unicode.BOMOverride(unicode.UTF8.NewDecoder()), nil
	case "latin1", "iso-8859-1":
		enc = charmap.ISO8859_1
	case "windows-1252", "cp1252":
		enc = charmap.Windows1252
	case "gbk":
		enc = simplifiedchinese.GBK
	default:
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
	return enc.NewDecoder(), nil
}

func missingValues(values []string) []string {
	if len(values) == 0 {
		return []string{"", "NA", "NaN"}
	}
	return values
}
