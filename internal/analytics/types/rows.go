package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	pkgbigquery "github.com/angelmondragon/digistore-backend/pkg/bigquery"
)

// SaleFactRow mirrors the sale_facts BigQuery schema: one row per product
// sold, plus one row per refund.
type SaleFactRow struct {
	EventID        string    `bigquery:"event_id"`
	EventType      string    `bigquery:"event_type"`
	OccurredAt     time.Time `bigquery:"occurred_at"`
	TransactionID  string    `bigquery:"transaction_id"`
	OrderNumber    string    `bigquery:"order_number"`
	BuyerID        *string   `bigquery:"buyer_id"`
	ProductID      *string   `bigquery:"product_id"`
	SellerID       *string   `bigquery:"seller_id"`
	Quantity       int64     `bigquery:"quantity"`
	UnitPriceCents *int64    `bigquery:"unit_price_cents"`
	GrossCents     int64     `bigquery:"gross_cents"`
	DiscountCode   *string   `bigquery:"discount_code"`
	Currency       string    `bigquery:"currency"`
}

// InsertID dedupes streaming retries of the same fact.
func (r SaleFactRow) InsertID() string {
	if r.ProductID == nil {
		return r.EventID
	}
	return r.EventID + ":" + *r.ProductID
}

// Save implements bigquery.ValueSaver so each row carries its insert id.
func (r *SaleFactRow) Save() (map[string]cbigquery.Value, string, error) {
	return map[string]cbigquery.Value{
		"event_id":         r.EventID,
		"event_type":       r.EventType,
		"occurred_at":      r.OccurredAt,
		"transaction_id":   r.TransactionID,
		"order_number":     r.OrderNumber,
		"buyer_id":         nullable(r.BuyerID),
		"product_id":       nullable(r.ProductID),
		"seller_id":        nullable(r.SellerID),
		"quantity":         r.Quantity,
		"unit_price_cents": nullableInt(r.UnitPriceCents),
		"gross_cents":      r.GrossCents,
		"discount_code":    nullable(r.DiscountCode),
		"currency":         r.Currency,
	}, r.InsertID(), nil
}

func nullable(value *string) cbigquery.Value {
	if value == nil {
		return nil
	}
	return *value
}

func nullableInt(value *int64) cbigquery.Value {
	if value == nil {
		return nil
	}
	return *value
}

// SalesTableSpec is the sale facts table layout, partitioned by day on
// occurred_at and clustered for per-seller reporting.
func SalesTableSpec(name string) pkgbigquery.TableSpec {
	return pkgbigquery.TableSpec{
		Name: name,
		Schema: cbigquery.Schema{
			{Name: "event_id", Type: cbigquery.StringFieldType, Required: true},
			{Name: "event_type", Type: cbigquery.StringFieldType, Required: true},
			{Name: "occurred_at", Type: cbigquery.TimestampFieldType, Required: true},
			{Name: "transaction_id", Type: cbigquery.StringFieldType, Required: true},
			{Name: "order_number", Type: cbigquery.StringFieldType},
			{Name: "buyer_id", Type: cbigquery.StringFieldType},
			{Name: "product_id", Type: cbigquery.StringFieldType},
			{Name: "seller_id", Type: cbigquery.StringFieldType},
			{Name: "quantity", Type: cbigquery.IntegerFieldType, Required: true},
			{Name: "unit_price_cents", Type: cbigquery.IntegerFieldType},
			{Name: "gross_cents", Type: cbigquery.IntegerFieldType, Required: true},
			{Name: "discount_code", Type: cbigquery.StringFieldType},
			{Name: "currency", Type: cbigquery.StringFieldType, Required: true},
		},
		PartitionField: "occurred_at",
		Clustering:     []string{"seller_id", "event_type"},
	}
}
