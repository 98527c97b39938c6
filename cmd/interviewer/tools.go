package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/chriscow/interview-agent/pkg/ai"
	"github.com/chriscow/interview-agent/pkg/ai/llm"
	"github.com/chriscow/interview-agent/pkg/ai/stt"
	"github.com/chriscow/interview-agent/pkg/audio/wav"
	"github.com/chriscow/interview-agent/pkg/interview"
	"github.com/chriscow/interview-agent/pkg/plugin"
	"github.com/chriscow/interview-agent/pkg/rooms"
	"github.com/chriscow/interview-agent/pkg/token"
	"github.com/chriscow/interview-agent/pkg/turn"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a room access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		roomName, _ := cmd.Flags().GetString("room")

		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		if name == "" {
			name = token.DefaultIdentity
		}
		if roomName == "" {
			gen := rooms.NewGenerator(rooms.NewLiveKitRegistry(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret))
			if roomName, err = gen.Generate(cmd.Context()); err != nil {
				return err
			}
		}

		issuer, err := token.NewIssuer(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.TokenTTL)
		if err != nil {
			return err
		}
		jwt, err := issuer.Issue(name, roomName)
		if err != nil {
			return err
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"room": roomName, "token": jwt})
	},
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Room registry commands",
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active rooms",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		active, err := rooms.NewLiveKitRegistry(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret).
			ListActiveRooms(cmd.Context())
		if err != nil {
			return err
		}
		names := make([]string, 0, len(active))
		for name := range active {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var roomsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Print an unused room name",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		name, err := rooms.NewGenerator(rooms.NewLiveKitRegistry(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret)).
			Generate(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), name)
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Interview plan commands",
}

var planShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective interview plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		company, _ := cmd.Flags().GetString("company")
		prompt, _ := cmd.Flags().GetBool("prompt")

		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		if file != "" {
			cfg.InterviewPlanFile = file
		}
		plan, err := cfg.Plan()
		if err != nil {
			return err
		}
		return showPlan(cmd.OutOrStdout(), plan.WithCompany(company), prompt)
	},
}

var planValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an interview plan file",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		plan, err := interview.Load(file)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d questions)\n", file, plan.QuestionCount())
		return nil
	},
}

func showPlan(w io.Writer, plan interview.Plan, prompt bool) error {
	if prompt {
		text, err := plan.SystemPrompt()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, text)
		return err
	}
	data, err := plan.YAML()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

var turnCmd = &cobra.Command{
	Use:   "turn",
	Short: "Turn detection commands",
}

var turnDownloadCmd = &cobra.Command{
	Use:   "download-models",
	Short: "Download turn detection models",
	Long: `Download English and multilingual turn detection models.
Models are stored in $LK_MODEL_PATH/turn-detector or ~/.livekit/models/turn-detector.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")

		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		logger := setupLogger()
		logger.Info("Starting turn detection model download", slog.String("path", cfg.ModelPath))

		names := turn.Models()
		if model != "" {
			names = []string{model}
		}
		d := turn.NewDownloader(cfg.ModelPath, "", logger)
		for _, name := range names {
			if err := d.Download(cmd.Context(), name); err != nil {
				logger.Error("Failed to download model", slog.String("model", name), slog.String("error", err.Error()))
				return err
			}
		}

		logger.Info("Turn detection models downloaded successfully")
		return nil
	},
}

var turnPredictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict end-of-turn probability from chat history JSON",
	Long: `Read chat history JSON from stdin and output end-of-turn probability.
Input format: {"messages": [{"role": "user", "content": "Hello"}], "language": "en-US"}
Output format: {"eou_probability": 0.85}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		language, _ := cmd.Flags().GetString("language")
		remoteURL, _ := cmd.Flags().GetString("remote-url")

		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		if remoteURL == "" {
			remoteURL = cfg.RemoteEOTURL
		}
		logger := setupLogger()
		logger.Debug("Starting turn prediction",
			slog.String("model", model),
			slog.Float64("threshold", threshold),
			slog.String("language", language))

		detector, err := turn.New(turn.Config{
			Kind:      model,
			ModelPath: cfg.ModelPath,
			RemoteURL: remoteURL,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("create detector: %w", err)
		}
		if detector == nil {
			return fmt.Errorf("turn detector %q makes no predictions", model)
		}
		if c, ok := detector.(io.Closer); ok {
			defer c.Close()
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		return predictTurn(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), detector, threshold, language)
	},
}

type predictInput struct {
	Messages []llm.Message `json:"messages"`
	Language string        `json:"language,omitempty"`
}

type predictOutput struct {
	EOUProbability float64  `json:"eou_probability"`
	Threshold      *float64 `json:"threshold,omitempty"`
	EndOfTurn      *bool    `json:"end_of_turn,omitempty"`
}

func predictTurn(ctx context.Context, in io.Reader, out io.Writer, detector turn.Detector, threshold float64, language string) error {
	var input predictInput
	if err := json.NewDecoder(in).Decode(&input); err != nil {
		return fmt.Errorf("decode input JSON: %w", err)
	}
	if language != "" {
		input.Language = language
	}
	if input.Language == "" {
		input.Language = "en-US"
	}

	p, err := detector.PredictEndOfTurn(ctx, turn.ChatContext{Messages: input.Messages, Language: input.Language})
	if err != nil {
		return fmt.Errorf("prediction failed: %w", err)
	}

	result := predictOutput{EOUProbability: p}
	if threshold > 0 {
		eot := p >= threshold
		result.Threshold = &threshold
		result.EndOfTurn = &eot
	}
	return json.NewEncoder(out).Encode(result)
}

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Plugin management commands",
}

var pluginListCmd = &cobra.Command{
	Use:   "list [kind]",
	Short: "List registered plugins",
	Long: `List all registered plugins or plugins of a specific kind.
Available kinds: stt, tts, llm, vad`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var kind ai.Kind
		if len(args) > 0 {
			kind = ai.Kind(args[0])
		}
		listPlugins(cmd.OutOrStdout(), plugin.List(kind))
		return nil
	},
}

func listPlugins(w io.Writer, plugins []*plugin.Plugin) {
	if len(plugins) == 0 {
		fmt.Fprintln(w, "No plugins registered")
		return
	}
	fmt.Fprintf(w, "%-6s %-10s %-8s %s\n", "KIND", "NAME", "VERSION", "DESCRIPTION")
	for _, p := range plugins {
		v := p.Version
		if v == "" {
			v = "N/A"
		}
		fmt.Fprintf(w, "%-6s %-10s %-8s %s\n", p.Kind, p.Name, v, p.Description)
	}
}

var pluginTranscribeCmd = &cobra.Command{
	Use:   "transcribe",
	Short: "Read a WAV file and print its transcript using the chosen STT provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		provider, _ := cmd.Flags().GetString("provider")

		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		logger := setupLogger()
		logger.Info("Transcribing file", slog.String("file", file), slog.String("provider", provider))

		recognizer, err := plugin.Default().NewSTT(provider, providerOptions(cfg)[ai.KindSTT])
		if err != nil {
			return err
		}
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()
		return transcribe(ctx, f, recognizer, cfg.Language, cmd.OutOrStdout())
	},
}

// transcribe pushes every frame of a WAV stream through one STT stream and prints the
// final transcripts.
func transcribe(ctx context.Context, r io.Reader, recognizer stt.STT, language string, out io.Writer) error {
	header, frames, err := wav.Decode(r)
	if err != nil {
		return err
	}
	stream, err := recognizer.NewStream(ctx, stt.StreamConfig{
		SampleRate:  int(header.SampleRate),
		NumChannels: int(header.NumChannels),
		Lang:        language,
	})
	if err != nil {
		return fmt.Errorf("open STT stream: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		for ev := range stream.Events() {
			switch ev.Type {
			case stt.SpeechEventFinal:
				fmt.Fprintf(out, "Transcript: %s\n", ev.Text)
			case stt.SpeechEventError:
				done <- ev.Error
				return
			}
		}
		done <- nil
	}()

	for i, frame := range frames {
		if err := stream.Push(frame); err != nil {
			return fmt.Errorf("push audio frame %d: %w", i, err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("close STT stream: %w", err)
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
