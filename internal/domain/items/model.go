package items

import "time"

type Item struct {
	ItemCode      string
	ItemName      string
	ItemGroup     string
	PriceListRate float64 // цена по прайс-листу терминала
	StockUOM      string
	ActualQty     float64
	Image         string
	IsStockItem   bool
	HasSerialNo   bool
	HasBatchNo    bool
	Active        bool
	CreatedAt     time.Time
}

type Group struct {
	ID        int64
	Name      string
	Active    bool
	CreatedAt time.Time
}

// Batch — партия товара с собственным остатком.
type Batch struct {
	BatchNo   string
	ItemCode  string
	Qty       float64
	ExpiresAt *time.Time
}

// SearchResult — страница каталога плюс признак «особого» совпадения:
// если запрос попал в серийник/партию/штрихкод, соответствующее поле заполнено.
type SearchResult struct {
	Items    []Item
	SerialNo string
	BatchNo  string
	Barcode  string
}
