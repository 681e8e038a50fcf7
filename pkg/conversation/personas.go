package conversation

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

type PersonaName string

const (
	PersonaSassy    PersonaName = "sassy"
	PersonaConcise  PersonaName = "concise"
	PersonaComedian PersonaName = "comedian"
	PersonaCustom   PersonaName = "custom"

	DefaultPersona = PersonaConcise
)

const customPlaceholder = "Enter your custom system message here."

var builtinPersonas = []struct {
	name PersonaName
	text string
}{
	{PersonaSassy, "You are a sassy assistant who is fed up with answering questions."},
	{PersonaConcise, "You are a straightforward and concise assistant who is always ready to help."},
	{PersonaComedian, "You are a a stand-up comedian who specializes in wine jokes."},
}

// Personas maps persona names to system messages. Only the custom entry can
// change after construction.
type Personas struct {
	names  []PersonaName
	fixed  map[PersonaName]string
	custom string
}

// NewPersonas builds the built-in table plus the extra fixed personas given.
// Extra personas may not reuse a built-in name.
func NewPersonas(extra map[string]string) (*Personas, error) {
	p := &Personas{
		fixed:  map[PersonaName]string{},
		custom: customPlaceholder,
	}
	for _, b := range builtinPersonas {
		p.names = append(p.names, b.name)
		p.fixed[b.name] = b.text
	}
	p.names = append(p.names, PersonaCustom)

	extraNames := make([]string, 0, len(extra))
	for name := range extra {
		extraNames = append(extraNames, name)
	}
	sort.Strings(extraNames)

	for _, name_ := range extraNames {
		name := PersonaName(strings.TrimSpace(name_))
		text := extra[name_]
		if name == "" {
			return nil, errors.New("persona name cannot be empty")
		}
		if _, ok := p.fixed[name]; ok || name == PersonaCustom {
			return nil, errors.Errorf("persona %q is built-in and cannot be redefined", name)
		}
		if strings.TrimSpace(text) == "" {
			return nil, errors.Errorf("persona %q has an empty system message", name)
		}
		p.names = append(p.names, name)
		p.fixed[name] = text
	}

	return p, nil
}

func (p *Personas) Get(name PersonaName) (string, bool) {
	if name == PersonaCustom {
		return p.custom, true
	}
	text, ok := p.fixed[name]
	return text, ok
}

func (p *Personas) Has(name PersonaName) bool {
	_, ok := p.Get(name)
	return ok
}

// Names returns built-ins first, then custom, then extra personas by name.
func (p *Personas) Names() []PersonaName {
	ret := make([]PersonaName, len(p.names))
	copy(ret, p.names)
	return ret
}

// SetCustom replaces the text of the custom persona.
func (p *Personas) SetCustom(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	p.custom = text
	return nil
}
