package vcontrold

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sort"
	"strings"
)

// Introspection commands understood by the daemon.
const (
	commandList   = "commands"
	commandDetail = "detail"
)

var (
	// "<name>: <description>"
	commandLinePattern = regexp.MustCompile(`^\s*([^:\s]+):\s*(.*)$`)

	// "openHAB_<x>: GETTER|SETTER : <target> [; ITEM : <c>] [; TYPE : <t>]"
	aliasLinePattern = regexp.MustCompile(`^\s*(openHAB_[^:\s]+):\s*(GETTER|SETTER)\s*:\s*([^;\s]+)\s*(?:;\s*(ITEM|TYPE)\s*:\s*([^;\s]+)\s*)?(?:;\s*(TYPE)\s*:\s*([^;\s]+)\s*)?;?\s*$`)

	typeLinePattern = regexp.MustCompile(`^\s*Type:\s*(.*?)\s*$`)
	unitLinePattern = regexp.MustCompile(`^\s*Einheit:\s*(.*?)\s*$`)
	enumLinePattern = regexp.MustCompile(`^\s*Enum Bytes:\s*(\S+)\s+Text:?\s*(.*?)\s*$`)
)

// CommandMeta describes one command of the catalog.
type CommandMeta struct {
	Name        string
	Description string

	// Getter is the line sent to read the value; Setter is the command
	// the formatted value is appended to. Either may be empty.
	Getter string
	Setter string

	Type DeclaredType

	// Unit is the suffix the daemon appends to values, empty if none.
	Unit string

	// Enum lists the accepted values of an enum command, in the order the
	// daemon reported them. EnumText holds the matching labels.
	Enum     []string
	EnumText []string
}

// Accepts reports whether s is one of the enum values or labels of m.
// Labels count because the daemon replies to enum getters with the label.
func (m CommandMeta) Accepts(s string) bool {
	if s == "" {
		return false
	}
	return slices.Contains(m.Enum, s) || slices.Contains(m.EnumText, s)
}

func (m CommandMeta) clone() CommandMeta {
	m.Enum = slices.Clone(m.Enum)
	m.EnumText = slices.Clone(m.EnumText)
	return m
}

// Catalog maps command names to their metadata for one endpoint. A Catalog
// is immutable once built and safe for concurrent use.
type Catalog struct {
	endpoint Endpoint
	commands map[string]CommandMeta
	names    []string
}

// NewCatalog builds a catalog from already known metadata. It is meant for
// callers that obtain the command set from somewhere other than the daemon.
func NewCatalog(ep Endpoint, commands []CommandMeta) *Catalog {
	b := newCatalogBuilder(ep)
	for _, m := range commands {
		b.commands[m.Name] = &buildEntry{meta: m.clone(), typed: true}
	}
	return b.build()
}

// Endpoint returns the endpoint the catalog was discovered from.
func (c *Catalog) Endpoint() Endpoint { return c.endpoint }

// Lookup returns the metadata of name.
func (c *Catalog) Lookup(name string) (CommandMeta, bool) {
	m, ok := c.commands[name]
	if !ok {
		return CommandMeta{}, false
	}
	return m.clone(), true
}

// Names returns all command names in sorted order.
func (c *Catalog) Names() []string { return slices.Clone(c.names) }

// Len returns the number of commands.
func (c *Catalog) Len() int { return len(c.commands) }

// DiscoverCatalog connects to ep, reads the command list and the detail of
// every command, and disconnects. It does not retry; see CatalogCache.
func DiscoverCatalog(ctx context.Context, ep Endpoint, opts ...ClientOption) (*Catalog, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("invalid option: %w", err)
	}
	return discoverCatalog(ctx, ep, cfg)
}

func discoverCatalog(ctx context.Context, ep Endpoint, cfg *clientConfig) (*Catalog, error) {
	conn, err := dial(ctx, ep, cfg)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return buildCatalog(ctx, conn, ep, cfg.logger)
}

// buildCatalog runs the introspection sequence over s.
func buildCatalog(ctx context.Context, s Session, ep Endpoint, logger *slog.Logger) (*Catalog, error) {
	lines, err := request(ctx, s, commandList)
	if err != nil {
		return nil, err
	}

	b := newCatalogBuilder(ep)
	var discovered []string
	for _, line := range lines {
		name, ok := b.addCommandLine(line)
		if !ok {
			if logger != nil {
				logger.Debug("ignoring command list line", "line", line)
			}
			continue
		}
		discovered = append(discovered, name)
	}

	for _, name := range discovered {
		details, err := request(ctx, s, commandDetail+" "+name)
		if err != nil {
			return nil, err
		}
		b.applyDetail(name, details)
	}

	catalog := b.build()
	if logger != nil {
		logger.Info("catalog discovered", "endpoint", ep.String(), "commands", catalog.Len())
	}
	return catalog, nil
}

// request sends line and reads a block reply.
func request(ctx context.Context, s Session, line string) ([]string, error) {
	if err := s.SendLine(ctx, line); err != nil {
		return nil, err
	}
	return s.ReadBlock(ctx)
}

type buildEntry struct {
	meta CommandMeta

	// typed: the authoritative Type line has been seen. Later Type lines
	// describe the acknowledgement of a set and are ignored.
	typed bool
	unit  bool

	// aliasType is the TYPE of an alias registration, used when no
	// detail block declares one.
	aliasType string
}

type catalogBuilder struct {
	endpoint Endpoint
	commands map[string]*buildEntry

	// aliases maps an alias command to the logical command it registers.
	aliases map[string]string
}

func newCatalogBuilder(ep Endpoint) *catalogBuilder {
	return &catalogBuilder{
		endpoint: ep,
		commands: make(map[string]*buildEntry),
		aliases:  make(map[string]string),
	}
}

func (b *catalogBuilder) entry(name string) *buildEntry {
	e, ok := b.commands[name]
	if !ok {
		e = &buildEntry{meta: CommandMeta{Name: name}}
		b.commands[name] = e
	}
	return e
}

// addCommandLine registers one line of the command list and returns the
// daemon command name it names.
func (b *catalogBuilder) addCommandLine(line string) (string, bool) {
	m := commandLinePattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	name := m[1]

	e := b.entry(name)
	e.meta.Description = m[2]
	switch {
	case strings.HasPrefix(name, "set"):
		if e.meta.Setter == "" {
			e.meta.Setter = name
		}
	case e.meta.Getter == "":
		e.meta.Getter = name
	}

	if a := aliasLinePattern.FindStringSubmatch(line); a != nil {
		target := b.entry(a[3])
		if a[2] == "GETTER" {
			target.meta.Getter = name
		} else {
			target.meta.Setter = name
		}
		if a[4] == "TYPE" {
			target.aliasType = a[5]
		}
		if a[6] == "TYPE" {
			target.aliasType = a[7]
		}
		b.aliases[name] = a[3]
	}

	return name, true
}

// applyDetail scans the detail block of name. An alias command's details
// also describe its logical command.
func (b *catalogBuilder) applyDetail(name string, lines []string) {
	b.entry(name).applyDetail(lines)
	if target, ok := b.aliases[name]; ok {
		b.entry(target).applyDetail(lines)
	}
}

func (e *buildEntry) applyDetail(lines []string) {
	for _, line := range lines {
		if m := typeLinePattern.FindStringSubmatch(line); m != nil {
			if !e.typed {
				e.meta.Type = ParseDeclaredType(m[1])
				e.typed = true
			}
			continue
		}
		if m := unitLinePattern.FindStringSubmatch(line); m != nil {
			if !e.unit {
				unit := m[1]
				if unit == "(null)" {
					unit = ""
				}
				e.meta.Unit = unit
				e.unit = true
			}
			continue
		}
		if m := enumLinePattern.FindStringSubmatch(line); m != nil {
			e.meta.Enum = append(e.meta.Enum, m[1])
			e.meta.EnumText = append(e.meta.EnumText, m[2])
		}
	}
}

// build freezes the collected entries into a Catalog.
func (b *catalogBuilder) build() *Catalog {
	c := &Catalog{
		endpoint: b.endpoint,
		commands: make(map[string]CommandMeta, len(b.commands)),
		names:    make([]string, 0, len(b.commands)),
	}
	for name, e := range b.commands {
		m := e.meta
		if !e.typed {
			switch {
			case e.aliasType != "":
				m.Type = ParseDeclaredType(e.aliasType)
			case m.Unit != "":
				m.Type = TypeNumeric
			default:
				m.Type = TypeString
			}
		}
		if m.Type != TypeEnum {
			m.Enum = nil
			m.EnumText = nil
		}
		c.commands[name] = m
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c
}
