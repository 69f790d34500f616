package utils

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// 辅助函数：判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	return Contains(df.Names(), name)
}

// MissingColumns 返回 df 中不存在的列，顺序与 names 一致
func MissingColumns(df dataframe.DataFrame, names ...string) []string {
	var missing []string
	for _, n := range names {
		if !HasColumn(df, n) {
			missing = append(missing, n)
		}
	}
	return missing
}

// ParseNumber 解析数值文本，NA、空串、非有限值返回 ok=false
func ParseNumber(e series.Element) (float64, bool) {
	if e == nil || e.IsNA() {
		return math.NaN(), false
	}
	s := strings.TrimSpace(e.String())
	if s == "" {
		return math.NaN(), false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN(), false
	}
	return v, true
}

// IsNumericColumn 所有非缺失值都能解析为数字时返回 true；全部缺失的列不算数值列
func IsNumericColumn(s series.Series) bool {
	seen := false
	for i := 0; i < s.Len(); i++ {
		e := s.Elem(i)
		if e.IsNA() {
			continue
		}
		if _, ok := ParseNumber(e); !ok {
			return false
		}
		seen = true
	}
	return seen
}

// ValueCount 某个取值出现的次数
type ValueCount struct {
	Value string
	Count int
}

// ValueCounts 统计列中各取值出现次数，按次数降序、取值升序排列；缺失值记为 "NaN"
func ValueCounts(s series.Series) []ValueCount {
	counts := make(map[string]int)
	for i := 0; i < s.Len(); i++ {
		e := s.Elem(i)
		key := "NaN"
		if !e.IsNA() {
			key = e.String()
		}
		counts[key]++
	}

	out := make([]ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// NullCounts 每列缺失值数量
func NullCounts(df dataframe.DataFrame) map[string]int {
	out := make(map[string]int, df.Ncol())
	for _, name := range df.Names() {
		n := 0
		for _, na := range df.Col(name).IsNaN() {
			if na {
				n++
			}
		}
		out[name] = n
	}
	return out
}

// FormatFloat 导出用的浮点数格式，NaN 输出为空
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
