package quiz

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the layout of a YAML seed file.
//
//	quizzes:
//	  - id: capitals
//	    hostId: host-1
//	    title: World capitals
//	    joinCode: CAP123
//	    active: true
//	    questions:
//	      - id: q1
//	        order: 1
//	        text: Capital of France?
//	        correctAnswer: Paris
//	        wrongAnswers: [Lyon, Nice, Lille]
//	        timeLimitSeconds: 20
type File struct {
	Quizzes []Quiz `yaml:"quizzes"`
}

// LoadFile reads and validates the quizzes of a YAML seed file.
func LoadFile(path string) ([]Quiz, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("quiz: read %s: %w", path, err)
	}

	return Decode(bytes.NewReader(b))
}

// Decode reads and validates the quizzes of a YAML document.
func Decode(r io.Reader) ([]Quiz, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("quiz: decode yaml: %w", err)
	}

	out := make([]Quiz, 0, len(f.Quizzes))
	for _, q := range f.Quizzes {
		q, err := Validate(q)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}

	return out, nil
}
