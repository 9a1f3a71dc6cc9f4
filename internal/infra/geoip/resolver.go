package geoip

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"

	"bogofit/internal/infra"
)

// ErrUnavailable is returned when no database is loaded.
var ErrUnavailable = errors.New("geoip: resolver unavailable")

// countryDB is the slice of *geoip2.Reader the resolver needs.
type countryDB interface {
	Country(ip net.IP) (*geoip2.Country, error)
	Close() error
}

// Resolver maps shopper IP addresses to ISO country codes for the locale
// middleware.
type Resolver struct {
	db     countryDB
	logger *infra.Logger
}

// Open loads the MaxMind database at path. An empty path returns a nil
// Resolver and no error; lookups on it report ErrUnavailable.
func Open(path string, logger *infra.Logger) (*Resolver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return newResolver(reader, logger), nil
}

func newResolver(db countryDB, logger *infra.Logger) *Resolver {
	return &Resolver{db: db, logger: infra.LoggerOrDiscard(logger)}
}

// Country returns the upper-case ISO code for ip. Private and loopback
// addresses resolve to "" without touching the database.
func (r *Resolver) Country(ip string) (string, error) {
	if r == nil || r.db == nil {
		return "", ErrUnavailable
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "", fmt.Errorf("geoip: invalid ip %q", ip)
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return "", nil
	}
	record, err := r.db.Country(parsed)
	if err != nil {
		r.logger.Debug().Err(err).Str("ip", ip).Msg("geoip: lookup failed")
		return "", fmt.Errorf("geoip: lookup country: %w", err)
	}
	if record == nil {
		return "", nil
	}
	return strings.ToUpper(record.Country.IsoCode), nil
}

// Close releases the database.
func (r *Resolver) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
