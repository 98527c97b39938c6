// Package interview describes what an interview session asks and how it behaves.
// A Plan is built once (from defaults or a YAML file), handed to a worker at launch
// time and rendered into the session's system prompt.
package interview

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMinEndpointingDelay = 500 * time.Millisecond
	DefaultMaxEndpointingDelay = 5 * time.Second
)

// ErrInvalidPlan is returned by Validate for unusable plans.
var ErrInvalidPlan = errors.New("invalid interview plan")

// Plan is the per-session interview policy.
type Plan struct {
	// Company is the employer the interviewer represents.
	Company string `yaml:"company" json:"company"`
	// Persona describes the interviewer, e.g. "an experienced technical interviewer".
	Persona string `yaml:"persona" json:"persona"`
	// Questions are asked in order, one at a time.
	Questions []string `yaml:"questions" json:"questions"`
	// CodeReviewQuestion is asked word for word after the regular questions.
	CodeReviewQuestion string `yaml:"code_review_question" json:"code_review_question"`
	// ClosingLine ends the interview and is spoken word for word.
	ClosingLine string `yaml:"closing_line" json:"closing_line"`
	// Greeting is spoken as soon as the candidate joins.
	Greeting string `yaml:"greeting" json:"greeting"`

	AllowInterruptions  bool          `yaml:"allow_interruptions" json:"allow_interruptions"`
	MinEndpointingDelay time.Duration `yaml:"min_endpointing_delay" json:"min_endpointing_delay"`
	MaxEndpointingDelay time.Duration `yaml:"max_endpointing_delay" json:"max_endpointing_delay"`
}

// Default returns the stock mock-interview plan.
func Default() Plan {
	return Plan{
		Company: "X Company",
		Persona: "an experienced technical interviewer",
		Questions: []string{
			"Tell me about a time you disagreed with a teammate on a technical decision. How was it resolved?",
			"Describe the most difficult bug you have tracked down and how you found it.",
			"Given an array of integers and a target, how would you find two numbers that add up to the target? Walk me through the complexity.",
			"How would you design a URL shortening service that handles millions of requests per day?",
			"Tell me about a project where you had to learn a new technology quickly.",
		},
		CodeReviewQuestion: "You are reviewing a pull request that adds a cache in front of a database but never invalidates entries on writes. What feedback would you give the author?",
		ClosingLine:        "Thank you for your time today, that concludes our interview.",
		Greeting:           "Hey, are you ready to start the interview?",
		AllowInterruptions: true,

		MinEndpointingDelay: DefaultMinEndpointingDelay,
		MaxEndpointingDelay: DefaultMaxEndpointingDelay,
	}
}

// WithCompany returns a copy of p for the given company. Blank input keeps the
// plan's company.
func (p Plan) WithCompany(company string) Plan {
	if c := strings.TrimSpace(company); c != "" {
		p.Company = c
	}
	p.Questions = append([]string(nil), p.Questions...)
	return p
}

// QuestionCount is the number of questions asked, including the code-review question.
func (p Plan) QuestionCount() int {
	n := len(p.Questions)
	if p.CodeReviewQuestion != "" {
		n++
	}
	return n
}

// Validate reports every problem with the plan.
func (p Plan) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Company) == "" {
		errs = append(errs, errors.New("company is required"))
	}
	if strings.TrimSpace(p.Persona) == "" {
		errs = append(errs, errors.New("persona is required"))
	}
	if len(p.Questions) == 0 {
		errs = append(errs, errors.New("at least one question is required"))
	}
	for i, q := range p.Questions {
		if strings.TrimSpace(q) == "" {
			errs = append(errs, fmt.Errorf("question %d is empty", i+1))
		}
	}
	if strings.TrimSpace(p.ClosingLine) == "" {
		errs = append(errs, errors.New("closing line is required"))
	}
	if strings.TrimSpace(p.Greeting) == "" {
		errs = append(errs, errors.New("greeting is required"))
	}
	if p.MinEndpointingDelay < 0 {
		errs = append(errs, errors.New("min endpointing delay must not be negative"))
	}
	if p.MaxEndpointingDelay < p.MinEndpointingDelay {
		errs = append(errs, fmt.Errorf("max endpointing delay %s is below min %s", p.MaxEndpointingDelay, p.MinEndpointingDelay))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidPlan, errors.Join(errs...))
}

// Load reads a YAML plan file. Fields missing from the file keep their default
// values. The result is validated.
func Load(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("read plan: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML plan on top of Default and validates it.
func Parse(data []byte) (Plan, error) {
	p := Default()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// Encode serializes the plan for handing to a worker process.
func (p Plan) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode plan: %w", err)
	}
	return string(b), nil
}

// Decode is the inverse of Encode. The result is validated.
func Decode(s string) (Plan, error) {
	var p Plan
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// YAML renders the plan in the file format accepted by Load.
func (p Plan) YAML() ([]byte, error) {
	return yaml.Marshal(p)
}
