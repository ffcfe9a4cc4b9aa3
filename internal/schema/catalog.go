// Package schema holds the static definition catalog for the e-commerce
// database and renders it into retrievable documents.
package schema

import (
	"fmt"
	"strings"
)

// TableSentinel is the column name used by table-level entries.
const TableSentinel = "__table__"

// TableType is the data type recorded on table-level entries.
const TableType = "TABLE"

// Entry is one row of the catalog: either a table definition or a column definition.
type Entry struct {
	TableName  string `json:"table_name"`
	ColumnName string `json:"column_name"`
	LocalName  string `json:"column_name_zh,omitempty"`
	DataType   string `json:"data_type"`
	Definition string `json:"definition"`
}

// IsTable reports whether the entry describes a whole table.
func (e Entry) IsTable() bool { return e.ColumnName == TableSentinel }

// Document is a retrievable text with its metadata.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

type column struct {
	name, local, definition, dataType string
}

type table struct {
	name       string
	definition string
	columns    []column
}

var tables = []table{
	{
		name:       "members",
		definition: "Table that stores information about registered members.",
		columns: []column{
			{"member_id", "會員編號", "Unique identifier for each member", "Integer"},
			{"member_name", "姓名", "Member's full name", "String"},
			{"email", "電子郵件", "Member's email address", "String"},
			{"join_date", "加入日期", "Date the member registered", "DateTime"},
			{"member_level", "會員等級", "Membership level (e.g., Silver, Gold, Platinum)", "String"},
			{"referrer_id", "推薦人", "ID of the member who referred this member", "Integer (nullable)"},
			{"gender", "性別", "Member's gender (Male, Female, Unknown)", "String"},
			{"birth_year", "出生年份", "Year the member was born", "Integer"},
			{"country", "國家", "Country the member belongs to", "String"},
			{"is_active", "是否啟用", "Whether the member's account is active", "Boolean"},
		},
	},
	{
		name:       "items",
		definition: "Table containing details of all items available for sale.",
		columns: []column{
			{"item_id", "商品編號", "Unique identifier for each item", "Integer"},
			{"item_name", "商品名稱", "Name of the item", "String"},
			{"category", "分類", "Primary category of the item", "String"},
			{"subcategory", "子分類", "Subcategory of the item", "String"},
			{"brand", "品牌", "Brand of the item (e.g., Apple, Samsung, Nike, Adidas)", "String"},
			{"price", "價格", "Original price of the item", "Float"},
			{"stock_quantity", "庫存量", "Number of items available for sale", "Integer"},
			{"rating", "評分", "Average user rating", "Float"},
			{"is_active", "是否上架", "Whether the item is currently listed for sale", "Boolean"},
			{"created_at", "上架時間", "Time the item was listed", "DateTime"},
		},
	},
	{
		name:       "campaigns",
		definition: "Table listing all marketing campaigns and related information.",
		columns: []column{
			{"campaign_id", "活動編號", "Unique identifier for each marketing campaign", "Integer"},
			{"campaign_name", "活動名稱", "Name of the marketing campaign", "String"},
			{"start_date", "開始日期", "Start date of the campaign", "DateTime"},
			{"end_date", "結束日期", "End date of the campaign", "DateTime"},
			{"discount_rate", "折扣比例", "Discount rate offered in the campaign", "Float"},
			{"channel", "推廣渠道", "Promotion channel (e.g., App, Website, Email, Social Media)", "String"},
			{"description", "活動說明", "Detailed description of the campaign", "String"},
		},
	},
	{
		name:       "transactions",
		definition: "Table recording each transaction made by members.",
		columns: []column{
			{"transaction_id", "交易編號", "Unique identifier for each transaction", "Integer"},
			{"member_id", "會員編號", "Unique ID of the member making the transaction", "Integer"},
			{"campaign_id", "活動編號", "Associated marketing campaign for this transaction", "Integer (nullable)"},
			{"discount_rate", "折扣比例", "Discount rate used in this transaction (0–100%)", "Float"},
			{"final_price", "成交價格", "Final price after applying discount", "Float"},
			{"payment_method", "付款方式", "Payment method used (e.g., CreditCard, PayPal, ATM, LinePay)", "String"},
			{"transaction_time", "交易時間", "Time the transaction occurred", "DateTime"},
		},
	},
	{
		name:       "transaction_items",
		definition: "Table listing the specific items purchased in each transaction.",
		columns: []column{
			{"transaction_id", "交易編號", "Unique ID of the related main transaction", "Integer"},
			{"item_id", "商品編號", "Unique ID of the purchased item", "Integer"},
			{"quantity", "數量", "Quantity of the purchased item", "Integer"},
			{"unit_price", "單價", "Unit price of the item", "Float"},
		},
	},
}

// Catalog is an immutable list of schema entries.
type Catalog struct {
	entries []Entry
}

// NewCatalog builds the catalog for the e-commerce database. Each table
// contributes one table-level entry followed by its column entries.
func NewCatalog() *Catalog {
	var entries []Entry
	for _, t := range tables {
		entries = append(entries, Entry{
			TableName:  t.name,
			ColumnName: TableSentinel,
			DataType:   TableType,
			Definition: t.definition,
		})
		for _, c := range t.columns {
			entries = append(entries, Entry{
				TableName:  t.name,
				ColumnName: c.name,
				LocalName:  c.local,
				DataType:   c.dataType,
				Definition: c.definition,
			})
		}
	}
	return &Catalog{entries: entries}
}

// FromEntries builds a catalog from arbitrary entries, e.g. for tests.
func FromEntries(entries []Entry) *Catalog {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Catalog{entries: cp}
}

// Entries returns a copy of all entries in catalog order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Tables returns table names in catalog order.
func (c *Catalog) Tables() []string {
	var names []string
	seen := make(map[string]bool)
	for _, e := range c.entries {
		if !seen[e.TableName] {
			seen[e.TableName] = true
			names = append(names, e.TableName)
		}
	}
	return names
}

// Columns returns the column entries of one table.
func (c *Catalog) Columns(tableName string) []Entry {
	var out []Entry
	for _, e := range c.entries {
		if e.TableName == tableName && !e.IsTable() {
			out = append(out, e)
		}
	}
	return out
}

// Documents renders the catalog for embedding. Every table yields a summary
// document "<table>: <col>, <col>, ...", then every entry yields
// "<table>.<column>: [<type>] <definition>" carrying the entry as metadata.
func (c *Catalog) Documents() []Document {
	var docs []Document
	for _, name := range c.Tables() {
		var cols []string
		for _, e := range c.Columns(name) {
			cols = append(cols, e.ColumnName)
		}
		docs = append(docs, Document{
			ID:       name,
			Content:  fmt.Sprintf("%s: %s", name, strings.Join(cols, ", ")),
			Metadata: map[string]string{"table_name": name},
		})
	}
	for _, e := range c.entries {
		docs = append(docs, Document{
			ID:       e.TableName + "." + e.ColumnName,
			Content:  fmt.Sprintf("%s.%s: [%s] %s", e.TableName, e.ColumnName, e.DataType, e.Definition),
			Metadata: e.metadata(),
		})
	}
	return docs
}

func (e Entry) metadata() map[string]string {
	m := map[string]string{
		"table_name":  e.TableName,
		"column_name": e.ColumnName,
		"data_type":   e.DataType,
		"definition":  e.Definition,
	}
	if e.LocalName != "" {
		m["column_name_zh"] = e.LocalName
	}
	return m
}
