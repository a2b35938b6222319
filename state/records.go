/*
records.go - Persisted schemas of the entity kinds

PURPOSE:
  One record type per entity kind, with an explicit JSON field list. Event
  payloads are records, never the domain structs themselves, so renaming a
  Go field cannot silently change what is on disk.

ENCODING RULES:
  - Decimals are strings ("12.5"), so no precision is lost to float64.
  - Durations are integer nanoseconds.
  - Times are RFC 3339 in UTC.
  - Storage metadata (relate event id, disabled flag) is NOT recorded: it is
    derived from the event carrying the record.

MAIL DELIVERIES:
  A delivery record stores route ids instead of full legs, plus the derived
  duration, cost and price as they were computed at submission. Replay
  resolves the ids again and restores the recorded values as-is.

SEE ALSO:
  - projection.go: decodes records while folding events
*/
package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/kpsmart/mail"
)

// =============================================================================
// RECORDS
// =============================================================================

type LocationRecord struct {
	Name          string `json:"name"`
	International bool   `json:"international"`
}

type CarrierRecord struct {
	Name string `json:"name"`
}

type RouteRecord struct {
	Start          string              `json:"start"`
	End            string              `json:"end"`
	Transport      mail.TransportMeans `json:"transport"`
	CarrierID      uint64              `json:"carrier_id"`
	WeightCost     decimal.Decimal     `json:"weight_cost"`
	VolumeCost     decimal.Decimal     `json:"volume_cost"`
	DurationNanos  int64               `json:"duration_ns"`
	FrequencyNanos int64               `json:"frequency_ns"`
	FirstDeparture *time.Time          `json:"first_departure,omitempty"`
}

type CustomerPriceRecord struct {
	Start       string          `json:"start,omitempty"`
	End         string          `json:"end"`
	Priority    mail.Priority   `json:"priority"`
	WeightPrice decimal.Decimal `json:"weight_price"`
	VolumePrice decimal.Decimal `json:"volume_price"`
}

type DomesticPriceRecord struct {
	Priority    mail.Priority   `json:"priority"`
	WeightPrice decimal.Decimal `json:"weight_price"`
	VolumePrice decimal.Decimal `json:"volume_price"`
}

type MailDeliveryRecord struct {
	RouteIDs              []uint64        `json:"route_ids"`
	Priority              mail.Priority   `json:"priority"`
	Weight                decimal.Decimal `json:"weight"`
	Volume                decimal.Decimal `json:"volume"`
	SubmittedAt           time.Time       `json:"submitted_at"`
	ShippingDurationNanos int64           `json:"shipping_duration_ns"`
	Cost                  decimal.Decimal `json:"cost"`
	Price                 decimal.Decimal `json:"price"`
}

// =============================================================================
// DOMAIN -> RECORD
// =============================================================================

func locationRecord(l mail.Location) LocationRecord {
	return LocationRecord{Name: l.Name, International: l.International}
}

func carrierRecord(c mail.Carrier) CarrierRecord {
	return CarrierRecord{Name: c.Name}
}

func routeRecord(r mail.Route) RouteRecord {
	rec := RouteRecord{
		Start:          r.Start,
		End:            r.End,
		Transport:      r.Transport,
		CarrierID:      r.CarrierID,
		WeightCost:     r.WeightCost,
		VolumeCost:     r.VolumeCost,
		DurationNanos:  int64(r.Duration),
		FrequencyNanos: int64(r.Frequency),
	}
	if !r.FirstDeparture.IsZero() {
		t := r.FirstDeparture.UTC()
		rec.FirstDeparture = &t
	}
	return rec
}

func customerPriceRecord(p mail.CustomerPrice) CustomerPriceRecord {
	return CustomerPriceRecord{
		Start:       p.Start,
		End:         p.End,
		Priority:    p.Priority,
		WeightPrice: p.WeightPrice,
		VolumePrice: p.VolumePrice,
	}
}

func domesticPriceRecord(p mail.DomesticCustomerPrice) DomesticPriceRecord {
	return DomesticPriceRecord{Priority: p.Priority, WeightPrice: p.WeightPrice, VolumePrice: p.VolumePrice}
}

func mailDeliveryRecord(m mail.MailDelivery) MailDeliveryRecord {
	return MailDeliveryRecord{
		RouteIDs:              m.RouteIDs(),
		Priority:              m.Priority,
		Weight:                m.Weight,
		Volume:                m.Volume,
		SubmittedAt:           m.SubmittedAt.UTC(),
		ShippingDurationNanos: int64(m.ShippingDuration),
		Cost:                  m.Cost,
		Price:                 m.Price,
	}
}

// =============================================================================
// RECORD -> DOMAIN
// =============================================================================

func (r LocationRecord) location(e mail.Entity) mail.Location {
	return mail.Location{Entity: e, Name: r.Name, International: r.International}
}

func (r CarrierRecord) carrier(e mail.Entity) mail.Carrier {
	return mail.Carrier{Entity: e, Name: r.Name}
}

func (r RouteRecord) route(e mail.Entity) mail.Route {
	route := mail.Route{
		Entity:     e,
		Start:      r.Start,
		End:        r.End,
		Transport:  r.Transport,
		CarrierID:  r.CarrierID,
		WeightCost: r.WeightCost,
		VolumeCost: r.VolumeCost,
		Duration:   time.Duration(r.DurationNanos),
		Frequency:  time.Duration(r.FrequencyNanos),
	}
	if r.FirstDeparture != nil {
		route.FirstDeparture = r.FirstDeparture.UTC()
	}
	return route
}

func (r CustomerPriceRecord) customerPrice(e mail.Entity) mail.CustomerPrice {
	return mail.CustomerPrice{
		Entity:      e,
		Start:       r.Start,
		End:         r.End,
		Priority:    r.Priority,
		WeightPrice: r.WeightPrice,
		VolumePrice: r.VolumePrice,
	}
}

func (r DomesticPriceRecord) domesticPrice(e mail.Entity) mail.DomesticCustomerPrice {
	return mail.DomesticCustomerPrice{Entity: e, Priority: r.Priority, WeightPrice: r.WeightPrice, VolumePrice: r.VolumePrice}
}

// mailDelivery rebuilds a delivery from already-resolved legs, restoring the
// recorded derivations.
func (r MailDeliveryRecord) mailDelivery(e mail.Entity, legs []mail.Leg) mail.MailDelivery {
	return mail.MailDelivery{
		Entity:           e,
		Legs:             legs,
		Priority:         r.Priority,
		Weight:           r.Weight,
		Volume:           r.Volume,
		SubmittedAt:      r.SubmittedAt.UTC(),
		ShippingDuration: time.Duration(r.ShippingDurationNanos),
		Cost:             r.Cost,
		Price:            r.Price,
	}
}

// =============================================================================
// PAYLOAD CODEC
// =============================================================================

func encodePayload(rec any) (json.RawMessage, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", rec, err)
	}
	return raw, nil
}

func decodePayload[R any](raw json.RawMessage) (R, error) {
	var rec R
	if len(raw) == 0 {
		return rec, fmt.Errorf("missing %T payload", rec)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("decode %T: %w", rec, err)
	}
	return rec, nil
}
