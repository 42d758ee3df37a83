package models

// Collections used by the café back office.
const (
	CollectionCustomers   = "customers"
	CollectionDevices     = "devices"
	CollectionSessions    = "sessions"
	CollectionSnacks      = "snacks"
	CollectionMemberships = "memberships"
	CollectionRecharges   = "recharges"
	CollectionLogs        = "logs"
)

func DefaultCollections() []string {
	return []string{
		CollectionCustomers,
		CollectionDevices,
		CollectionSessions,
		CollectionSnacks,
		CollectionMemberships,
		CollectionRecharges,
		CollectionLogs,
	}
}
