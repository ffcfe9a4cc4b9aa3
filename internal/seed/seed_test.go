package seed

import (
	"context"
	"database/sql"
	"math"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return opts
}

func TestGenerateCounts(t *testing.T) {
	ds := Generate(testOptions())
	if len(ds.Members) != 100 || len(ds.Items) != 30 || len(ds.Campaigns) != 5 || len(ds.Transactions) != 150 {
		t.Fatalf("unexpected sizes: members=%d items=%d campaigns=%d transactions=%d",
			len(ds.Members), len(ds.Items), len(ds.Campaigns), len(ds.Transactions))
	}
	if n := len(ds.TransactionItems); n < 150 || n > 450 {
		t.Errorf("got %d transaction items, want between 150 and 450", n)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a := Generate(testOptions())
	b := Generate(testOptions())
	for i := range a.Members {
		if a.Members[i].Email != b.Members[i].Email {
			t.Fatalf("member %d differs between runs: %q vs %q", i, a.Members[i].Email, b.Members[i].Email)
		}
	}
	if a.Transactions[149].FinalPrice != b.Transactions[149].FinalPrice {
		t.Error("transactions differ between runs with the same seed")
	}
}

func TestGenerateInvariants(t *testing.T) {
	ds := Generate(testOptions())

	emails := map[string]bool{}
	for _, m := range ds.Members {
		if emails[m.Email] {
			t.Errorf("duplicate email %q", m.Email)
		}
		emails[m.Email] = true
		if m.ReferrerID != nil && *m.ReferrerID >= m.ID {
			t.Errorf("member %d referred by later member %d", m.ID, *m.ReferrerID)
		}
		if m.BirthYear < 1960 || m.BirthYear > 2007 {
			t.Errorf("birth year %d out of range", m.BirthYear)
		}
	}

	campaigns := map[int]Campaign{}
	for _, c := range ds.Campaigns {
		campaigns[c.ID] = c
		if !strings.HasSuffix(c.Name, " Sale") {
			t.Errorf("campaign name %q", c.Name)
		}
		days := c.EndDate.Sub(c.StartDate).Hours() / 24
		if days < 7 || days > 30 {
			t.Errorf("campaign %d lasts %.1f days", c.ID, days)
		}
	}

	lines := map[int][]TransactionItem{}
	for _, l := range ds.TransactionItems {
		lines[l.TransactionID] = append(lines[l.TransactionID], l)
	}
	for _, tx := range ds.Transactions {
		if tx.CampaignID == nil && tx.DiscountRate != 0 {
			t.Errorf("transaction %d has discount without campaign", tx.ID)
		}
		if tx.CampaignID != nil && campaigns[*tx.CampaignID].DiscountRate != tx.DiscountRate {
			t.Errorf("transaction %d discount does not match its campaign", tx.ID)
		}
		ls := lines[tx.ID]
		if len(ls) < 1 || len(ls) > 3 {
			t.Errorf("transaction %d has %d lines", tx.ID, len(ls))
		}
		var total float64
		for _, l := range ls {
			total += l.UnitPrice * float64(l.Quantity)
		}
		want := math.Round(total*(100-tx.DiscountRate)) / 100
		if math.Abs(want-tx.FinalPrice) > 0.011 {
			t.Errorf("transaction %d final price %.2f, want %.2f", tx.ID, tx.FinalPrice, want)
		}
	}
}

func TestDDLUnknownDialect(t *testing.T) {
	if _, err := DDL("oracle"); err == nil {
		t.Fatal("expected error for unsupported dialect")
	}
	stmts, err := DDL("postgresql")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stmts[4], "PRIMARY KEY (transaction_id, item_id)") {
		t.Errorf("composite key missing:\n%s", stmts[4])
	}
}

func TestLoadSQLite(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	ctx := context.Background()
	ds := Generate(testOptions())
	if err := Load(ctx, db, "sqlite", ds, zap.NewNop()); err != nil {
		t.Fatalf("load: %v", err)
	}

	for table, want := range map[string]int{
		"members":           len(ds.Members),
		"items":             len(ds.Items),
		"campaigns":         len(ds.Campaigns),
		"transactions":      len(ds.Transactions),
		"transaction_items": len(ds.TransactionItems),
	} {
		var got int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&got); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if got != want {
			t.Errorf("%s has %d rows, want %d", table, got, want)
		}
	}
}
