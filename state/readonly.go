package state

import "github.com/warp/kpsmart/mail"

// ReadOnly is the query surface shared by the live State and historical
// Views. Absence is reported with a bool, never an error.
//
// Lookups by id resolve soft-deleted entities too (check Active); lookups
// by unique key and collections only see active entities. Collections are
// ordered by id and are copies the caller may keep.
type ReadOnly interface {
	// EventID is the last event folded into this state.
	EventID() uint64
	// NumberOfEvents is the length of the log prefix this state reflects.
	NumberOfEvents() uint64

	Location(name string) (mail.Location, bool)
	LocationByID(id uint64) (mail.Location, bool)
	Locations() []mail.Location

	Carrier(id uint64) (mail.Carrier, bool)
	CarrierByName(name string) (mail.Carrier, bool)
	Carriers() []mail.Carrier

	Route(id uint64) (mail.Route, bool)
	RouteByKey(start, end string, transport mail.TransportMeans, carrierID uint64) (mail.Route, bool)
	Routes() []mail.Route
	RoutesForPriority(p mail.Priority) []mail.Route
	RoutesBetween(start, end string, p mail.Priority) []mail.Route
	RoutesConnectedTo(name string) []mail.Route

	CustomerPrice(id uint64) (mail.CustomerPrice, bool)
	CustomerPriceByKey(start, end string, p mail.Priority) (mail.CustomerPrice, bool)
	CustomerPrices() []mail.CustomerPrice
	DomesticPrice(p mail.Priority) (mail.DomesticCustomerPrice, bool)
	DomesticPrices() []mail.DomesticCustomerPrice
	Price(start, end string, p mail.Priority) (mail.Price, bool)

	MailDelivery(id uint64) (mail.MailDelivery, bool)
	MailDeliveries() []mail.MailDelivery

	// RevenueTimeline is one cumulative point per mail delivery event.
	RevenueTimeline() []RevenuePoint
}

var (
	_ ReadOnly    = (*View)(nil)
	_ ReadOnly    = (*State)(nil)
	_ mail.Pricer = (*projection)(nil)
)
