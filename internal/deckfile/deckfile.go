package deckfile

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/conorfennell/openingdrill/internal/domain"
)

// File is the content of one deck file.
//
//	deck: Starter Repertoire
//	openings:
//	  - name: Italian Game
//	    side: white
//	    lines:
//	      - name: Giuoco Piano
//	        moves: [e4, e5, Nf3, Nc6, Bc4, Bc5]
type File struct {
	Deck     string    `koanf:"deck" validate:"required"`
	Openings []Opening `koanf:"openings" validate:"required,min=1,dive"`
}

// Opening is an opening entry of a deck file.
type Opening struct {
	Name  string      `koanf:"name" validate:"required"`
	Side  domain.Side `koanf:"side" validate:"required,oneof=white black"`
	Lines []Line      `koanf:"lines" validate:"required,min=1,dive"`
}

// Line is a line entry of a deck file.
type Line struct {
	Name  string   `koanf:"name"`
	Moves []string `koanf:"moves" validate:"required,min=1,dive,san"`
}

var sanPattern = regexp.MustCompile(`^(?:[NBRQK][a-h]?[1-8]?x?[a-h][1-8]|[a-h](?:x[a-h])?[1-8](?:=[NBRQ])?|O-O(?:-O)?)[+#]?$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("san", func(fl validator.FieldLevel) bool {
		return sanPattern.MatchString(fl.Field().String())
	})
	return v
}

// ParseFile reads a deck file from the given path.
func ParseFile(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads a YAML deck file from an io.Reader and validates it.
func Parse(r io.Reader) (*File, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(b), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse deck file: %w", err)
	}

	var f File
	if err := k.Unmarshal("", &f); err != nil {
		return nil, fmt.Errorf("failed to decode deck file: %w", err)
	}
	f.trim()

	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid deck file: %w", err)
	}
	return &f, nil
}

func (f *File) trim() {
	f.Deck = strings.TrimSpace(f.Deck)
	for i := range f.Openings {
		o := &f.Openings[i]
		o.Name = strings.TrimSpace(o.Name)
		o.Side = domain.Side(strings.ToLower(strings.TrimSpace(string(o.Side))))
		for j := range o.Lines {
			l := &o.Lines[j]
			l.Name = strings.TrimSpace(l.Name)
			for m := range l.Moves {
				l.Moves[m] = strings.TrimSpace(l.Moves[m])
			}
		}
	}
}

// IsDeckFile reports whether a file name looks like a deck file.
func IsDeckFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
