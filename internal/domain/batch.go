package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Batch партия одного товара, принятая на одной точке в одну дату.
// Партия с нулевым остатком не хранится: ledger удаляет запись.
type Batch struct {
	ID            string
	ProductID     string
	LocationID    string
	Quantity      int
	UnitCost      decimal.Decimal
	ReceptionDate time.Time
	BatchNumber   string
	CreatedAt     time.Time
	Version       int64
}

// BatchPortion сколько единиц и по какой цене взято из одной партии.
type BatchPortion struct {
	BatchID       string          `json:"batch_id"`
	BatchNumber   string          `json:"batch_number"`
	Quantity      int             `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	ReceptionDate time.Time       `json:"reception_date"`
	// CreatedAt момент создания партии, второй ключ FIFO-порядка.
	CreatedAt time.Time `json:"created_at"`
}

// Cost возвращает себестоимость порции.
func (p BatchPortion) Cost() decimal.Decimal {
	return p.UnitCost.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// ConsumptionPlan результат FIFO-списания по паре (товар, точка).
type ConsumptionPlan struct {
	ProductID  string
	LocationID string
	Quantity   int
	Portions   []BatchPortion
}

// TotalCost сумма q·c по всем порциям.
func (p ConsumptionPlan) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, portion := range p.Portions {
		total = total.Add(portion.Cost())
	}
	return total
}

// UnitCost средневзвешенная себестоимость Σ(q·c)/Σq без округления.
func (p ConsumptionPlan) UnitCost() decimal.Decimal {
	return WeightedUnitCost(p.Portions)
}

// BatchNumbers номера партий в порядке списания.
func (p ConsumptionPlan) BatchNumbers() []string {
	return batchNumbers(p.Portions)
}

// WeightedUnitCost считает Σ(q·c)/Σq; для пустого набора возвращает ноль.
func WeightedUnitCost(portions []BatchPortion) decimal.Decimal {
	total := decimal.Zero
	qty := int64(0)
	for _, portion := range portions {
		total = total.Add(portion.Cost())
		qty += int64(portion.Quantity)
	}
	if qty == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(qty))
}

func batchNumbers(portions []BatchPortion) []string {
	numbers := make([]string, 0, len(portions))
	for _, portion := range portions {
		numbers = append(numbers, portion.BatchNumber)
	}
	return numbers
}

// WriteOff запись о списании товара из партии (брак, истёк срок, пересорт).
type WriteOff struct {
	ID          string
	BatchID     string
	BatchNumber string
	ProductID   string
	LocationID  string
	Quantity    int
	UnitCost    decimal.Decimal
	Cost        decimal.Decimal
	Reason      string
	Comment     string
	UserID      string
	CreatedAt   time.Time
}

// Location точка продаж: идентификатор и отображаемое имя города.
type Location struct {
	ID   string
	Name string
}
