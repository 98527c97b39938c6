package interview

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestDefaultIsValid(t *testing.T) {
	is := is.New(t)
	p := Default()
	is.NoErr(p.Validate())
	is.Equal(p.MinEndpointingDelay, 500*time.Millisecond)
	is.Equal(p.MaxEndpointingDelay, 5*time.Second)
	is.Equal(p.Greeting, "Hey, are you ready to start the interview?")
	is.True(p.AllowInterruptions)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Plan)
		want   string
	}{
		{name: "missing company", mutate: func(p *Plan) { p.Company = " " }, want: "company is required"},
		{name: "no questions", mutate: func(p *Plan) { p.Questions = nil }, want: "at least one question"},
		{name: "blank question", mutate: func(p *Plan) { p.Questions[1] = "" }, want: "question 2 is empty"},
		{name: "missing closing line", mutate: func(p *Plan) { p.ClosingLine = "" }, want: "closing line is required"},
		{name: "delays inverted", mutate: func(p *Plan) { p.MaxEndpointingDelay = 100 * time.Millisecond }, want: "max endpointing delay"},
		{name: "negative delay", mutate: func(p *Plan) { p.MinEndpointingDelay = -1 }, want: "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			p := Default()
			tt.mutate(&p)

			err := p.Validate()
			is.True(errors.Is(err, ErrInvalidPlan))
			is.True(strings.Contains(err.Error(), tt.want))
		})
	}
}

func TestWithCompany(t *testing.T) {
	is := is.New(t)
	base := Default()

	p := base.WithCompany("  Acme  ")
	is.Equal(p.Company, "Acme")
	is.Equal(base.WithCompany("").Company, base.Company)

	p.Questions[0] = "changed"
	is.True(base.Questions[0] != "changed") // questions are copied
}

func TestParseYAMLOverridesDefaults(t *testing.T) {
	is := is.New(t)

	p, err := Parse([]byte(`
company: Initech
questions:
  - What is a TPS report?
  - Why do you want to work here?
allow_interruptions: false
min_endpointing_delay: 800ms
max_endpointing_delay: 3s
`))
	is.NoErr(err)
	is.Equal(p.Company, "Initech")
	is.Equal(len(p.Questions), 2)
	is.Equal(p.AllowInterruptions, false)
	is.Equal(p.MinEndpointingDelay, 800*time.Millisecond)
	is.Equal(p.MaxEndpointingDelay, 3*time.Second)
	is.Equal(p.ClosingLine, Default().ClosingLine) // untouched fields keep defaults
}

func TestParseRejectsInvalid(t *testing.T) {
	is := is.New(t)

	_, err := Parse([]byte("questions: []\n"))
	is.True(errors.Is(err, ErrInvalidPlan))

	_, err = Parse([]byte("questions: [unterminated\n"))
	is.True(err != nil)
}

func TestLoad(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "plan.yaml")
	is.NoErr(os.WriteFile(path, []byte("company: Hooli\n"), 0o600))

	p, err := Load(path)
	is.NoErr(err)
	is.Equal(p.Company, "Hooli")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	is.True(errors.Is(err, os.ErrNotExist))
}

func TestEncodeDecode(t *testing.T) {
	is := is.New(t)
	in := Default().WithCompany("Acme")

	s, err := in.Encode()
	is.NoErr(err)
	out, err := Decode(s)
	is.NoErr(err)
	is.Equal(out, in)

	_, err = Decode(`{"company":"Acme"}`)
	is.True(errors.Is(err, ErrInvalidPlan))
}

func TestYAMLRoundTrip(t *testing.T) {
	is := is.New(t)
	in := Default()

	data, err := in.YAML()
	is.NoErr(err)
	is.True(strings.Contains(string(data), "min_endpointing_delay: 500ms"))

	out, err := Parse(data)
	is.NoErr(err)
	is.Equal(out, in)
}
