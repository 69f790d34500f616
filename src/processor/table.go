package processor

import (
	"github.com/go-gota/gota/dataframe"
)

// 列名
const (
	ColID                = "ID"
	ColCommissioningYear = "commissioning_year"
	ColCountry           = "country"
	ColCapacityMW        = "capacity_mw"
	ColDecade            = "decade"
	ColAge               = "umur"
	ColCapacityPerYear   = "capacity_per_year"
	ColGppdIDNR          = "gppd_idnr"
	ColName              = "name"
)

// RequiredColumns 清洗前必须存在的列
var RequiredColumns = []string{ColCommissioningYear, ColCountry, ColCapacityMW}

// Record 清洗后的一行
type Record struct {
	ID                int
	Key               string
	CommissioningYear float64
	Decade            int
	Age               float64
	Country           string
	CapacityMW        float64 // 缺失时为 NaN
	CapacityPerYear   float64 // 缺失时为 NaN
}

// Table 清洗结果，创建后只读
type Table struct {
	frame     dataframe.DataFrame
	records   []Record
	keyColumn string
}

// NewTable 直接由记录构造表(测试、非 DataFrame 来源)
func NewTable(records []Record, keyColumn string) *Table {
	if keyColumn == "" {
		keyColumn = ColID
	}
	return &Table{records: records, keyColumn: keyColumn}
}

// Frame 清洗后的 DataFrame，ID 为第一列
func (t *Table) Frame() dataframe.DataFrame { return t.frame }

// Records 清洗后的记录，调用方不得修改
func (t *Table) Records() []Record { return t.records }

// KeyColumn 作为唯一键的列
func (t *Table) KeyColumn() string { return t.keyColumn }

func (t *Table) Len() int { return len(t.records) }
