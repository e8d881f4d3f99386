// SPDX-License-Identifier: GPL-3.0-or-later

package unboundctl

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

// Command is a control command and its optional payload.
type Command struct {
	// Args contains the command name followed by its arguments.
	Args []string

	// Payload is sent after the request line when [RequiresPayload]
	// returns true for the command name.
	Payload []byte
}

// NewCommand creates a [Command] from its name and arguments.
func NewCommand(args ...string) Command {
	return Command{Args: args}
}

// WithPayload returns a copy of c carrying the given payload.
func (c Command) WithPayload(payload []byte) Command {
	c.Payload = payload
	return c
}

// Name returns the command name or the empty string.
func (c Command) Name() string {
	if len(c.Args) < 1 {
		return ""
	}
	return c.Args[0]
}

// String returns the space joined arguments.
func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// CommandError is returned by the command constructors for invalid input.
type CommandError struct {
	Command string
	Value   string
	Reason  string
}

// Error implements error.
func (e *CommandError) Error() string {
	if e.Command == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: invalid argument %q: %s", e.Command, e.Value, e.Reason)
}

// localZoneTypes are the zone types accepted by local_zone.
var localZoneTypes = map[string]bool{
	"deny":               true,
	"refuse":             true,
	"static":             true,
	"transparent":        true,
	"typetransparent":    true,
	"redirect":           true,
	"nodefault":          true,
	"inform":             true,
	"inform_deny":        true,
	"inform_redirect":    true,
	"always_transparent": true,
	"always_refuse":      true,
	"always_nxdomain":    true,
	"always_null":        true,
	"noview":             true,
}

// NewStatusCommand returns the status command.
func NewStatusCommand() Command {
	return NewCommand("status")
}

// NewVerbosityCommand returns a command setting the verbosity level (0-5).
func NewVerbosityCommand(level int) (Command, error) {
	if level < 0 || level > 5 {
		return Command{}, &CommandError{"verbosity", strconv.Itoa(level), "level must be between 0 and 5"}
	}
	return NewCommand("verbosity", strconv.Itoa(level)), nil
}

// NewFlushCommand returns a command removing name from the cache.
func NewFlushCommand(name string) (Command, error) {
	return newNameCommand("flush", name)
}

// NewFlushZoneCommand returns a command removing name and everything below it from the cache.
func NewFlushZoneCommand(name string) (Command, error) {
	return newNameCommand("flush_zone", name)
}

// NewFlushInfraCommand returns a command removing an infrastructure cache
// entry. The argument is an IP address or "all".
func NewFlushInfraCommand(target string) (Command, error) {
	if target != "all" {
		if _, err := netip.ParseAddr(target); err != nil {
			return Command{}, &CommandError{"flush_infra", target, "expected an IP address or all"}
		}
	}
	return NewCommand("flush_infra", target), nil
}

// NewFlushTypeCommand returns a command removing the given RR type for name from the cache.
func NewFlushTypeCommand(name string, qtype uint16) (Command, error) {
	fqdn, err := checkDomainName("flush_type", name)
	if err != nil {
		return Command{}, err
	}
	typeName, found := dns.TypeToString[qtype]
	if !found {
		return Command{}, &CommandError{"flush_type", strconv.Itoa(int(qtype)), "unknown RR type"}
	}
	return NewCommand("flush_type", fqdn, typeName), nil
}

// NewLookupCommand returns a command printing the delegation used for name.
func NewLookupCommand(name string) (Command, error) {
	return newNameCommand("lookup", name)
}

// NewLocalZoneCommand returns a command adding a local zone.
func NewLocalZoneCommand(name, zoneType string) (Command, error) {
	fqdn, err := checkDomainName("local_zone", name)
	if err != nil {
		return Command{}, err
	}
	if !localZoneTypes[zoneType] {
		return Command{}, &CommandError{"local_zone", zoneType, "unknown local zone type"}
	}
	return NewCommand("local_zone", fqdn, zoneType), nil
}

// NewLocalZoneRemoveCommand returns a command removing a local zone.
func NewLocalZoneRemoveCommand(name string) (Command, error) {
	return newNameCommand("local_zone_remove", name)
}

// NewLocalDataCommand returns a command adding local data.
//
// The record is given in zone file syntax, e.g. "www.example.com. 3600 IN A 192.0.2.1".
func NewLocalDataCommand(record string) (Command, error) {
	rr, err := dns.NewRR(record)
	if err != nil {
		return Command{}, &CommandError{"local_data", record, err.Error()}
	}
	if rr == nil {
		return Command{}, &CommandError{"local_data", record, "empty record"}
	}
	args := append([]string{"local_data"}, strings.Fields(rr.String())...)
	return NewCommand(args...), nil
}

// NewLocalDataRemoveCommand returns a command removing all local data for name.
func NewLocalDataRemoveCommand(name string) (Command, error) {
	return newNameCommand("local_data_remove", name)
}

// NewForwardAddCommand returns a command adding a forward zone.
func NewForwardAddCommand(zone string, addrs ...netip.Addr) (Command, error) {
	fqdn, err := checkDomainName("forward_add", zone)
	if err != nil {
		return Command{}, err
	}
	if len(addrs) < 1 {
		return Command{}, &CommandError{"forward_add", zone, "at least one address is required"}
	}
	args := []string{"forward_add", fqdn}
	for _, addr := range addrs {
		if !addr.IsValid() {
			return Command{}, &CommandError{"forward_add", addr.String(), "invalid address"}
		}
		args = append(args, addr.String())
	}
	return NewCommand(args...), nil
}

// NewForwardRemoveCommand returns a command removing a forward zone.
func NewForwardRemoveCommand(zone string) (Command, error) {
	return newNameCommand("forward_remove", zone)
}

func newNameCommand(command, name string) (Command, error) {
	fqdn, err := checkDomainName(command, name)
	if err != nil {
		return Command{}, err
	}
	return NewCommand(command, fqdn), nil
}

// checkDomainName validates name and returns its fully qualified form.
func checkDomainName(command, name string) (string, error) {
	if name == "" {
		return "", &CommandError{command, name, "empty domain name"}
	}
	// Whitespace would split the name into two request arguments.
	if strings.ContainsAny(name, " \t\r\n") {
		return "", &CommandError{command, name, "domain name contains whitespace"}
	}
	if _, ok := dns.IsDomainName(name); !ok {
		return "", &CommandError{command, name, "not a valid domain name"}
	}
	return dns.Fqdn(name), nil
}
