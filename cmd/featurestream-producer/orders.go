package main

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

var statuses = []string{"completed", "pending", "cancelled"}

type order struct {
	CustomerID  string  `json:"customer_id"`
	ProductID   string  `json:"product_id"`
	OrderAmount float64 `json:"order_amount"`
	OrderStatus string  `json:"order_status"`
	EventTime   string  `json:"event_time"`
}

// generator produces sample orders with the shape the consumer expects.
type generator struct {
	rnd *rand.Rand
	now func() time.Time
}

func newGenerator(seed uint64) *generator {
	return &generator{
		rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

func (g *generator) next() order {
	amount := 10 + g.rnd.Float64()*(999.99-10)
	return order{
		CustomerID:  fmt.Sprintf("C%d", 1000+g.rnd.IntN(9000)),
		ProductID:   fmt.Sprintf("P%d", 1000+g.rnd.IntN(9000)),
		OrderAmount: math.Round(amount*100) / 100,
		OrderStatus: statuses[g.rnd.IntN(len(statuses))],
		EventTime:   g.now().UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// encode returns the record key and JSON value of o. Orders of one customer
// share a partition.
func (o order) encode() ([]byte, []byte, error) {
	value, err := json.Marshal(o)
	if err != nil {
		return nil, nil, err
	}
	return []byte(o.CustomerID), value, nil
}
