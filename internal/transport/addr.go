package transport

import (
	"fmt"
	"net"
	"slices"
	"strconv"
)

// AddressBook maps module aliases to loopback listen addresses. The port of
// an alias is the base port plus its index in the sorted alias list, so
// every process derives the same address without coordination.
type AddressBook struct {
	host     string
	basePort int
	index    map[string]int
}

// NewAddressBook returns an address book over aliases.
func NewAddressBook(host string, basePort int, aliases []string) *AddressBook {
	sorted := slices.Clone(aliases)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	index := make(map[string]int, len(sorted))
	for i, a := range sorted {
		index[a] = i
	}
	return &AddressBook{host: host, basePort: basePort, index: index}
}

// Addr returns the host:port of alias.
func (b *AddressBook) Addr(alias string) (string, error) {
	i, ok := b.index[alias]
	if !ok {
		return "", fmt.Errorf("no transport address for unknown module %q", alias)
	}
	return net.JoinHostPort(b.host, strconv.Itoa(b.basePort+i)), nil
}

// URL returns the base URL a client dials to reach alias.
func (b *AddressBook) URL(alias string) (string, error) {
	addr, err := b.Addr(alias)
	if err != nil {
		return "", err
	}
	return "http://" + addr, nil
}
