package remotestore

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"bar-pos/internal/apperr"
	"bar-pos/internal/models"
)

// TopSeller is one row of the best-seller table.
type TopSeller struct {
	ProductName string  `json:"product_name"`
	Sold        int     `json:"sold"`
	Revenue     float64 `json:"revenue"`
}

// ReportData defines the shape of our analytics response
type ReportData struct {
	From         time.Time     `json:"from"`
	To           time.Time     `json:"to"`
	TotalRevenue float64       `json:"total_revenue"`
	TotalOrders  int64         `json:"total_orders"`
	TopSelling   []TopSeller   `json:"top_selling"`
	RecentSales  []models.Sale `json:"recent_sales"`
}

// ValuationItem represents a single row in a category table
type ValuationItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	CostPrice float64 `json:"cost_price"`
	TotalCost float64 `json:"total_cost"`
}

// CategoryGroup is one category with its subtotal
type CategoryGroup struct {
	CategoryName string          `json:"category_name"`
	Items        []ValuationItem `json:"items"`
	Subtotal     float64         `json:"subtotal"`
}

type ValuationResponse struct {
	Categories []CategoryGroup `json:"categories"`
	GrandTotal float64         `json:"grand_total"`
}

func authorizeReports(c Caller, businessID string) error {
	if !c.Role.CanViewReports() {
		return apperr.Forbidden("%s cannot view reports", c.Role)
	}
	return authorizeTenant(c, businessID)
}

// SalesReport summarises a tenant's sales dated within [from, to]. A zero
// bound is open.
func (s *Service) SalesReport(ctx context.Context, c Caller, businessID string, from, to time.Time) (ReportData, error) {
	if err := authorizeReports(c, businessID); err != nil {
		return ReportData{}, err
	}
	snap, err := s.repo.Snapshot(ctx, businessID)
	if err != nil {
		return ReportData{}, err
	}

	data := ReportData{From: from, To: to, TopSelling: []TopSeller{}, RecentSales: []models.Sale{}}
	revenue := decimal.Zero
	type agg struct {
		sold    int
		revenue decimal.Decimal
	}
	byName := map[string]*agg{}

	// 1. Revenue, order count and per-product totals in range
	var inRange []models.Sale
	for _, sale := range snap.Sales {
		if (!from.IsZero() && sale.Date.Before(from)) || (!to.IsZero() && sale.Date.After(to)) {
			continue
		}
		inRange = append(inRange, sale)
		revenue = revenue.Add(decimal.NewFromFloat(sale.TotalAmount))
		for _, it := range sale.Items {
			a, ok := byName[it.Name]
			if !ok {
				a = &agg{}
				byName[it.Name] = a
			}
			a.sold += it.Quantity
			a.revenue = a.revenue.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
	}
	data.TotalRevenue = revenue.Round(2).InexactFloat64()
	data.TotalOrders = int64(len(inRange))

	// 2. Top 5 best sellers
	for name, a := range byName {
		data.TopSelling = append(data.TopSelling, TopSeller{ProductName: name, Sold: a.sold, Revenue: a.revenue.Round(2).InexactFloat64()})
	}
	sort.Slice(data.TopSelling, func(i, j int) bool {
		if data.TopSelling[i].Sold != data.TopSelling[j].Sold {
			return data.TopSelling[i].Sold > data.TopSelling[j].Sold
		}
		return data.TopSelling[i].ProductName < data.TopSelling[j].ProductName
	})
	if len(data.TopSelling) > 5 {
		data.TopSelling = data.TopSelling[:5]
	}

	// 3. Last 10 sales, newest first
	sort.SliceStable(inRange, func(i, j int) bool { return inRange[i].Date.After(inRange[j].Date) })
	if len(inRange) > 10 {
		inRange = inRange[:10]
	}
	data.RecentSales = append(data.RecentSales, inRange...)
	return data, nil
}

// StockValuation prices the tenant's stock at buying price, per category.
func (s *Service) StockValuation(ctx context.Context, c Caller, businessID string) (ValuationResponse, error) {
	if err := authorizeReports(c, businessID); err != nil {
		return ValuationResponse{}, err
	}
	snap, err := s.repo.Snapshot(ctx, businessID)
	if err != nil {
		return ValuationResponse{}, err
	}

	grand := decimal.Zero
	subtotals := map[string]decimal.Decimal{}
	groups := map[string]*CategoryGroup{}
	for _, p := range snap.Products {
		cat := p.Category
		if cat == "" {
			cat = "Uncategorized"
		}
		g, ok := groups[cat]
		if !ok {
			g = &CategoryGroup{CategoryName: cat, Items: []ValuationItem{}}
			groups[cat] = g
		}

		total := decimal.NewFromFloat(p.BuyingPrice).Mul(decimal.NewFromInt(int64(p.Stock)))
		g.Items = append(g.Items, ValuationItem{
			Name:      p.Name,
			Quantity:  p.Stock,
			CostPrice: p.BuyingPrice,
			TotalCost: total.Round(2).InexactFloat64(),
		})
		subtotals[cat] = subtotals[cat].Add(total)
		grand = grand.Add(total)
	}

	resp := ValuationResponse{Categories: []CategoryGroup{}, GrandTotal: grand.Round(2).InexactFloat64()}
	for cat, g := range groups {
		g.Subtotal = subtotals[cat].Round(2).InexactFloat64()
		resp.Categories = append(resp.Categories, *g)
	}
	sort.Slice(resp.Categories, func(i, j int) bool { return resp.Categories[i].CategoryName < resp.Categories[j].CategoryName })
	return resp, nil
}
