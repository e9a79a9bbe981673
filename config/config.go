// Package config is a registry of named configuration variables settable
// from the command line or from an HCL config file.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type Value interface {
	Set(string) error
	SetValue(interface{}) error
	String() string
}

type setBy int

const (
	byDefault setBy = iota
	byConfig
	byArg
)

type Var struct {
	name   string
	val    Value
	by     setBy
	hidden bool
}

// Hide keeps the variable out of listings; it can still be set.
func (cv *Var) Hide() *Var {
	cv.hidden = true
	return cv
}

type Config struct {
	vars map[string]*Var
}

func NewConfig() *Config {
	return &Config{
		vars: map[string]*Var{},
	}
}

func (c *Config) addVar(val Value, name string) *Var {
	name = strings.ToLower(name)
	if _, dup := c.vars[name]; dup {
		panic(fmt.Sprintf("config: %s is already a config variable", name))
	}
	cv := &Var{name: name, val: val}
	c.vars[name] = cv
	return cv
}

func (c *Config) BoolVar(p *bool, name string) *Var {
	return c.addVar((*boolValue)(p), name)
}

func (c *Config) IntVar(p *int, name string) *Var {
	return c.addVar((*intValue)(p), name)
}

func (c *Config) StringVar(p *string, name string) *Var {
	return c.addVar((*stringValue)(p), name)
}

// Set sets a variable from a command line style name=value string; command
// line settings win over the config file.
func (c *Config) Set(name, val string) error {
	cv, ok := c.vars[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("config: %s is not a config variable", name)
	}
	err := cv.val.Set(val)
	if err != nil {
		return fmt.Errorf("config: %s: %s", name, err)
	}
	cv.by = byArg
	return nil
}

// Vars lists the visible variables sorted by name.
func (c *Config) Vars() []*Var {
	list := make([]*Var, 0, len(c.vars))
	for _, cv := range c.vars {
		if !cv.hidden {
			list = append(list, cv)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].name < list[j].name
	})
	return list
}

func (cv *Var) Name() string {
	return cv.name
}

func (cv *Var) Value() string {
	return cv.val.String()
}

type boolValue bool

func (b *boolValue) Set(s string) error {
	v, err := strconv.ParseBool(s)
	*b = boolValue(v)
	return err
}

func (b *boolValue) SetValue(v interface{}) error {
	bv, ok := v.(bool)
	if !ok {
		return fmt.Errorf("parsing %v: invalid syntax", v)
	}
	*b = boolValue(bv)
	return nil
}

func (b *boolValue) String() string {
	return strconv.FormatBool(bool(*b))
}

type intValue int

func (i *intValue) Set(s string) error {
	v, err := strconv.ParseInt(s, 0, strconv.IntSize)
	*i = intValue(v)
	return err
}

func (i *intValue) SetValue(v interface{}) error {
	switch iv := v.(type) {
	case int:
		*i = intValue(iv)
	case float64:
		*i = intValue(iv)
	default:
		return fmt.Errorf("parsing %v: invalid syntax", v)
	}
	return nil
}

func (i *intValue) String() string {
	return strconv.Itoa(int(*i))
}

type stringValue string

func (s *stringValue) Set(v string) error {
	*s = stringValue(v)
	return nil
}

func (s *stringValue) SetValue(v interface{}) error {
	sv, ok := v.(string)
	if !ok {
		return fmt.Errorf("parsing %v: invalid syntax", v)
	}
	*s = stringValue(sv)
	return nil
}

func (s *stringValue) String() string {
	return string(*s)
}
