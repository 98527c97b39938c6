package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/chriscow/interview-agent/pkg/ai/llm"
	"github.com/chriscow/interview-agent/pkg/turn/internal"
)

const (
	maxHistoryTokens = 128
	maxHistoryTurns  = 6
	slowInference    = 25 * time.Millisecond
)

// ErrModelNotFound is returned when model files have not been downloaded.
var ErrModelNotFound = errors.New("turn detector model not found")

// ONNXDetector scores turns with the LiveKit turn-detector model running locally
// under ONNX Runtime. Model files are loaded lazily on first use.
type ONNXDetector struct {
	model     internal.ModelInfo
	modelPath string
	logger    *slog.Logger

	loadOnce   sync.Once
	loadErr    error
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	tokenizer  *tokenizer.Tokenizer

	languagesOnce sync.Once
	languagesErr  error
	languages     map[string]languageConfig
}

type languageConfig struct {
	Threshold float64 `json:"threshold"`
}

// NewONNXDetector creates a detector for the named model ("english" or
// "multilingual"). An empty modelPath selects DefaultModelPath.
func NewONNXDetector(modelName, modelPath string, logger *slog.Logger) (*ONNXDetector, error) {
	model, ok := internal.Lookup(modelName)
	if !ok {
		return nil, fmt.Errorf("unknown turn detector model: %s (supported: english|multilingual)", modelName)
	}
	if modelPath == "" {
		modelPath = DefaultModelPath()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ONNXDetector{
		model:     model,
		modelPath: modelPath,
		logger:    logger.With(slog.String("turn_model", model.Name)),
	}, nil
}

// UnlikelyThreshold returns the language-specific threshold from languages.json.
func (d *ONNXDetector) UnlikelyThreshold(language string) (float64, error) {
	if err := d.loadLanguages(); err != nil {
		return 0, err
	}
	cfg, ok := d.lookupLanguage(language)
	if !ok {
		return 0, fmt.Errorf("unsupported language: %s", language)
	}
	return cfg.Threshold, nil
}

// SupportsLanguage returns true if the detector has a tuned threshold for this language.
func (d *ONNXDetector) SupportsLanguage(language string) bool {
	if err := d.loadLanguages(); err != nil {
		return false
	}
	_, ok := d.lookupLanguage(language)
	return ok
}

// lookupLanguage accepts both "en" and region-qualified tags such as "en-US".
func (d *ONNXDetector) lookupLanguage(language string) (languageConfig, bool) {
	lang := strings.ToLower(language)
	if cfg, ok := d.languages[lang]; ok {
		return cfg, true
	}
	base, _, _ := strings.Cut(lang, "-")
	cfg, ok := d.languages[base]
	return cfg, ok
}

// PredictEndOfTurn returns the probability that the last user message ends the turn.
func (d *ONNXDetector) PredictEndOfTurn(ctx context.Context, chatCtx ChatContext) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := d.load(); err != nil {
		return 0, err
	}

	start := time.Now()
	text := FormatChat(chatCtx.Messages)
	if text == "" {
		return DefaultThreshold, nil
	}

	encoding, err := d.tokenizer.EncodeSingle(text, false)
	if err != nil {
		return 0, fmt.Errorf("tokenize chat: %w", err)
	}
	ids := encoding.GetIds()
	if len(ids) > maxHistoryTokens {
		ids = ids[len(ids)-maxHistoryTokens:]
	}

	prob, err := d.infer(ids)
	if err != nil {
		return 0, err
	}

	if latency := time.Since(start); latency > slowInference {
		d.logger.Debug("slow turn detection inference", slog.Duration("latency", latency))
	}
	return prob, nil
}

func (d *ONNXDetector) infer(ids []int) (float64, error) {
	data := make([]int64, len(ids))
	for i, id := range ids {
		data[i] = int64(id)
	}

	input, err := ort.NewTensor(ort.NewShape(1, int64(len(data))), data)
	if err != nil {
		return 0, fmt.Errorf("create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := d.session.Run([]ort.Value{input}, outputs); err != nil {
		return 0, fmt.Errorf("run turn detector: %w", err)
	}
	defer outputs[0].Destroy()

	probs, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return 0, fmt.Errorf("unexpected turn detector output type %T", outputs[0])
	}
	values := probs.GetData()
	if len(values) == 0 {
		return 0, errors.New("empty turn detector output")
	}
	// The model emits one EOU probability per token; the last one scores the turn.
	return clamp01(float64(values[len(values)-1])), nil
}

func (d *ONNXDetector) load() error {
	d.loadOnce.Do(func() {
		d.loadErr = d.loadModel()
	})
	return d.loadErr
}

func (d *ONNXDetector) loadModel() error {
	modelFile := internal.FilePath(d.modelPath, d.model, internal.ModelFile)
	tokenizerFile := internal.FilePath(d.modelPath, d.model, internal.TokenizerFile)
	for _, f := range []string{modelFile, tokenizerFile} {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("%w: %s (run 'interviewer turn download' first)", ErrModelNotFound, f)
		}
	}

	tk, err := pretrained.FromFile(tokenizerFile)
	if err != nil {
		return fmt.Errorf("load tokenizer: %w", err)
	}
	d.tokenizer = tk

	if err := ensureOrtEnv(); err != nil {
		return fmt.Errorf("initialize ONNX runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelFile)
	if err != nil {
		return fmt.Errorf("inspect model: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return fmt.Errorf("model %s has no inputs or outputs", modelFile)
	}
	d.inputName = inputs[0].Name
	d.outputName = outputs[0].Name

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(max(1, runtime.NumCPU()/2)); err != nil {
		return fmt.Errorf("set intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return fmt.Errorf("set inter-op threads: %w", err)
	}
	if err := options.AddSessionConfigEntry("session.dynamic_block_base", "4"); err != nil {
		return fmt.Errorf("set session.dynamic_block_base: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelFile, []string{d.inputName}, []string{d.outputName}, options)
	if err != nil {
		return fmt.Errorf("create ONNX session: %w", err)
	}
	d.session = session
	d.logger.Info("turn detector loaded", slog.String("path", modelFile))
	return nil
}

func (d *ONNXDetector) loadLanguages() error {
	d.languagesOnce.Do(func() {
		path := internal.FilePath(d.modelPath, d.model, internal.LanguagesFile)
		data, err := os.ReadFile(path)
		if err != nil {
			d.languagesErr = fmt.Errorf("%w: %w", ErrModelNotFound, err)
			return
		}
		d.languages, d.languagesErr = parseLanguages(data)
	})
	return d.languagesErr
}

// parseLanguages accepts both {"en": {"threshold": 0.85}} and {"en": 0.85}.
func parseLanguages(data []byte) (map[string]languageConfig, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode languages.json: %w", err)
	}
	out := make(map[string]languageConfig, len(raw))
	for lang, v := range raw {
		var cfg languageConfig
		if err := json.Unmarshal(v, &cfg); err != nil {
			var threshold float64
			if err := json.Unmarshal(v, &threshold); err != nil {
				return nil, fmt.Errorf("decode languages.json entry %q: %w", lang, err)
			}
			cfg.Threshold = threshold
		}
		out[strings.ToLower(lang)] = cfg
	}
	return out, nil
}

// Close releases the ONNX session.
func (d *ONNXDetector) Close() error {
	if d.session != nil {
		return d.session.Destroy()
	}
	return nil
}

// FormatChat renders the user and assistant messages of the last few turns in
// the model's chat template. Adjacent messages from the same role are merged and
// the final end-of-turn marker is left off so the model predicts it.
func FormatChat(messages []llm.Message) string {
	type turn struct {
		role    llm.MessageRole
		content string
	}
	var turns []turn
	for _, msg := range messages {
		if msg.Role != llm.RoleUser && msg.Role != llm.RoleAssistant {
			continue
		}
		content := normalizeText(msg.Content)
		if content == "" {
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].role == msg.Role {
			turns[n-1].content += " " + content
			continue
		}
		turns = append(turns, turn{role: msg.Role, content: content})
	}
	if len(turns) == 0 {
		return ""
	}
	if len(turns) > maxHistoryTurns {
		turns = turns[len(turns)-maxHistoryTurns:]
	}

	var b strings.Builder
	for i, t := range turns {
		fmt.Fprintf(&b, "<|im_start|><|%s|>%s", t.role, t.content)
		if i < len(turns)-1 {
			b.WriteString("<|im_end|>")
		}
	}
	return b.String()
}

// normalizeText lowercases, drops punctuation other than apostrophes and hyphens,
// and collapses whitespace, matching the model's training data.
func normalizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) && r != '\'' && r != '-' {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// DefaultModelPath returns LK_MODEL_PATH, or ~/.livekit/models.
func DefaultModelPath() string {
	if path := os.Getenv("LK_MODEL_PATH"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "livekit-models")
	}
	return filepath.Join(home, ".livekit", "models")
}
