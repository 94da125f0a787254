package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Spok95/pos-bot/internal/domain/orders"
)

// Service — клиент внешнего сервиса пересчёта. Налоги и скидки считаются
// там, мы только отправляем снимок документа и применяем ответ.
type Service struct {
	baseURL string
	client  *http.Client
}

func NewService(baseURL string) *Service {
	return &Service{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type lineSnapshot struct {
	ItemCode           string  `json:"item_code"`
	BatchNo            string  `json:"batch_no,omitempty"`
	Qty                float64 `json:"qty"`
	Rate               float64 `json:"rate"`
	DiscountPercentage float64 `json:"discount_percentage"`
}

type request struct {
	Name         string         `json:"name"`
	Customer     string         `json:"customer"`
	Currency     string         `json:"currency"`
	PriceList    string         `json:"price_list"`
	ChangedField string         `json:"changed_field"`
	Lines        []lineSnapshot `json:"lines"`
}

type DerivedLine struct {
	ItemCode string  `json:"item_code"`
	BatchNo  string  `json:"batch_no"`
	Rate     float64 `json:"rate"`
	Amount   float64 `json:"amount"`
}

type Derived struct {
	Lines        []DerivedLine    `json:"lines"`
	Taxes        []orders.TaxLine `json:"taxes"`
	NetTotal     float64          `json:"net_total"`
	GrandTotal   float64          `json:"grand_total"`
	RoundedTotal float64          `json:"rounded_total"`
	TotalQty     float64          `json:"total_qty"`
}

// Recompute отправляет документ на пересчёт после изменения поля changedField.
func (s *Service) Recompute(ctx context.Context, d *orders.Document, changedField string) (*Derived, error) {
	req := request{
		Name:         d.Name,
		Customer:     d.Customer,
		Currency:     d.Currency,
		PriceList:    d.PriceList,
		ChangedField: changedField,
	}
	for _, l := range d.Lines {
		req.Lines = append(req.Lines, lineSnapshot{
			ItemCode:           l.ItemCode,
			BatchNo:            l.BatchNo,
			Qty:                l.Qty,
			Rate:               l.Rate,
			DiscountPercentage: l.DiscountPercentage,
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/recompute", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("pricing call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pricing returned status %s", resp.Status)
	}

	var out Derived
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("pricing decode: %w", err)
	}
	return &out, nil
}
