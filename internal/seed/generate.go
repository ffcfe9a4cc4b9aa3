// Package seed generates the synthetic e-commerce dataset and loads it into
// a database/sql connection.
package seed

import (
	"math"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

type Member struct {
	ID         int
	Name       string
	Email      string
	JoinDate   time.Time
	Level      string
	ReferrerID *int
	Gender     string
	BirthYear  int
	Country    string
	IsActive   bool
}

type Item struct {
	ID            int
	Name          string
	Category      string
	Subcategory   string
	Brand         string
	Price         float64
	StockQuantity int
	Rating        float64
	IsActive      bool
	CreatedAt     time.Time
}

type Campaign struct {
	ID           int
	Name         string
	StartDate    time.Time
	EndDate      time.Time
	DiscountRate float64
	Channel      string
	Description  string
}

type Transaction struct {
	ID            int
	MemberID      int
	CampaignID    *int
	DiscountRate  float64
	FinalPrice    float64
	PaymentMethod string
	Time          time.Time
}

type TransactionItem struct {
	TransactionID int
	ItemID        int
	Quantity      int
	UnitPrice     float64
}

// Dataset is one generated fixture set.
type Dataset struct {
	Members          []Member
	Items            []Item
	Campaigns        []Campaign
	Transactions     []Transaction
	TransactionItems []TransactionItem
}

// Options controls dataset size and determinism.
type Options struct {
	Members      int
	Items        int
	Campaigns    int
	Transactions int
	Seed         uint64
	// Now anchors the generated date ranges. Zero means time.Now().
	Now time.Time
}

// DefaultOptions returns the standard fixture size.
func DefaultOptions() Options {
	return Options{
		Members:      100,
		Items:        30,
		Campaigns:    5,
		Transactions: 150,
		Seed:         87,
	}
}

type category struct {
	name          string
	subcategories []string
	brands        []string
}

var categories = []category{
	{"Electronics", []string{"Laptop", "Smartphone", "Headphones", "Tablet"}, []string{"Apple", "Samsung", "Sony", "ASUS", "Logitech"}},
	{"Apparel", []string{"T-Shirt", "Jeans", "Sneakers", "Jacket"}, []string{"Nike", "Adidas", "Uniqlo", "Levi's", "North Face"}},
	{"Home & Kitchen", []string{"Sofa", "Dining Table", "Cookware Set", "Lamp"}, []string{"IKEA", "Philips", "Tefal", "Panasonic"}},
	{"Sports & Outdoors", []string{"Backpack", "Running Shoes", "Yoga Mat", "Bicycle"}, []string{"Nike", "Adidas", "Decathlon", "Giant"}},
	{"Beauty & Personal Care", []string{"Shampoo", "Face Wash", "Lipstick", "Perfume"}, []string{"L'Oréal", "Dove", "Nivea", "Maybelline"}},
}

var (
	levels    = []string{"Bronze", "Silver", "Gold", "Platinum"}
	genders   = []string{"Male", "Female", "Unknown"}
	countries = []string{"Taiwan", "Japan", "Korea", "USA"}
	channels  = []string{"App", "Website", "Email", "Social Media"}
	payments  = []string{"CreditCard", "PayPal", "ATM", "LinePay"}
)

// Generator produces datasets from a seeded faker.
type Generator struct {
	f    *gofakeit.Faker
	opts Options
	now  time.Time
}

func NewGenerator(opts Options) *Generator {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	return &Generator{
		f:    gofakeit.New(opts.Seed),
		opts: opts,
		now:  now.UTC().Truncate(time.Second),
	}
}

// Generate builds a complete dataset with the given options.
func Generate(opts Options) *Dataset {
	return NewGenerator(opts).Dataset()
}

func (g *Generator) Dataset() *Dataset {
	ds := &Dataset{
		Members:   g.members(),
		Items:     g.items(),
		Campaigns: g.campaigns(),
	}
	ds.Transactions, ds.TransactionItems = g.transactions(ds.Members, ds.Items, ds.Campaigns)
	return ds
}

func (g *Generator) members() []Member {
	out := make([]Member, 0, g.opts.Members)
	emails := make(map[string]bool)
	for i := 1; i <= g.opts.Members; i++ {
		var referrer *int
		if len(out) > 0 && g.chance(0.3) {
			id := out[g.f.IntRange(0, len(out)-1)].ID
			referrer = &id
		}
		email := g.f.Email()
		for emails[email] {
			email = g.f.Email()
		}
		emails[email] = true

		out = append(out, Member{
			ID:         i,
			Name:       g.f.Name(),
			Email:      email,
			JoinDate:   g.since(3 * 365 * 24 * time.Hour),
			Level:      g.f.RandomString(levels),
			ReferrerID: referrer,
			Gender:     g.f.RandomString(genders),
			BirthYear:  g.f.IntRange(1960, 2007),
			Country:    g.f.RandomString(countries),
			IsActive:   g.chance(0.8),
		})
	}
	return out
}

func (g *Generator) items() []Item {
	out := make([]Item, 0, g.opts.Items)
	for i := 1; i <= g.opts.Items; i++ {
		c := categories[g.f.IntRange(0, len(categories)-1)]
		out = append(out, Item{
			ID:            i,
			Name:          capitalize(g.f.Word()) + " " + capitalize(g.f.Word()),
			Category:      c.name,
			Subcategory:   g.f.RandomString(c.subcategories),
			Brand:         g.f.RandomString(c.brands),
			Price:         round(g.f.Float64Range(10, 2000), 2),
			StockQuantity: g.f.IntRange(0, 500),
			Rating:        round(g.f.Float64Range(1, 5), 1),
			IsActive:      g.f.IntRange(0, 2) != 0,
			CreatedAt:     g.since(3 * 365 * 24 * time.Hour),
		})
	}
	return out
}

func (g *Generator) campaigns() []Campaign {
	out := make([]Campaign, 0, g.opts.Campaigns)
	for i := 1; i <= g.opts.Campaigns; i++ {
		start := g.since(3 * 365 * 24 * time.Hour)
		out = append(out, Campaign{
			ID:           i,
			Name:         capitalize(g.f.Word()) + " Sale",
			StartDate:    start,
			EndDate:      start.AddDate(0, 0, g.f.IntRange(7, 30)),
			DiscountRate: round(g.f.Float64Range(5, 30), 2),
			Channel:      g.f.RandomString(channels),
			Description:  g.description(),
		})
	}
	return out
}

func (g *Generator) transactions(members []Member, items []Item, campaigns []Campaign) ([]Transaction, []TransactionItem) {
	txs := make([]Transaction, 0, g.opts.Transactions)
	var lines []TransactionItem
	if len(members) == 0 || len(items) == 0 {
		return txs, lines
	}
	for i := 1; i <= g.opts.Transactions; i++ {
		tx := Transaction{
			ID:            i,
			MemberID:      members[g.f.IntRange(0, len(members)-1)].ID,
			PaymentMethod: g.f.RandomString(payments),
			Time:          g.since(365 * 24 * time.Hour),
		}
		if len(campaigns) > 0 && g.chance(0.3) {
			c := campaigns[g.f.IntRange(0, len(campaigns)-1)]
			id := c.ID
			tx.CampaignID = &id
			tx.DiscountRate = c.DiscountRate
		}

		var total float64
		n := g.f.IntRange(1, min(3, len(items)))
		for _, idx := range g.sample(len(items), n) {
			it := items[idx]
			qty := g.f.IntRange(1, 5)
			total += it.Price * float64(qty)
			lines = append(lines, TransactionItem{
				TransactionID: tx.ID,
				ItemID:        it.ID,
				Quantity:      qty,
				UnitPrice:     it.Price,
			})
		}
		tx.FinalPrice = round(total*(100-tx.DiscountRate)/100, 2)
		txs = append(txs, tx)
	}
	return txs, lines
}

// sample picks k distinct indexes out of [0, n).
func (g *Generator) sample(n, k int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k; i++ {
		j := g.f.IntRange(i, n-1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}

func (g *Generator) chance(p float64) bool {
	return g.f.Float64Range(0, 1) < p
}

func (g *Generator) since(d time.Duration) time.Time {
	return g.f.DateRange(g.now.Add(-d), g.now).UTC().Truncate(time.Second)
}

func (g *Generator) description() string {
	words := make([]string, g.f.IntRange(6, 10))
	for i := range words {
		words[i] = g.f.Word()
	}
	return capitalize(strings.Join(words, " ")) + "."
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
