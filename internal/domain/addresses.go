package domain

// Addresses is the fixed, ordered list of facility addresses a user can file
// a ticket against. Inline keyboard callback data references entries by index,
// so the order is part of the external contract.
var Addresses = []string{
	"Складской проезд, 4",
	"Проспект Бакунина, 13",
	"Перекупной переулок, 18",
	"Полтавская улица, 5",
	"Боровая улица, 8И",
	"Крапивный переулок, 3А",
}

// AddressByIndex returns the address at the given keyboard index, reporting
// whether the index is in range.
func AddressByIndex(idx int) (string, bool) {
	if idx < 0 || idx >= len(Addresses) {
		return "", false
	}

	return Addresses[idx], true
}
