package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/schemainspector/internal/core/config"
	"github.com/solatis/schemainspector/internal/inspector"
	"github.com/solatis/schemainspector/internal/metrics"
	"github.com/solatis/schemainspector/internal/types"
)

// maxReplayLine bounds one JSON line of the replay file.
const maxReplayLine = 4 << 20

var replayCmd = &cobra.Command{
	Use:   "replay <events.jsonl|->",
	Short: "Run recorded events through a live inspector",
	Long: `Replay reads one JSON object per line:

  {"event": "Purchase", "properties": {...}, "eventId": "...", "eventHash": "..."}

Lines with an eventId are tracked as generated events, the rest as manual
events. Configuration comes from --config and SI_* environment variables;
--db-url overrides storage.url.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	replayCmd.Flags().Bool("structpb", false, "decode properties as google.protobuf.Struct JSON (integral numbers up to 2^53 stay ints)")
	replayCmd.Flags().Bool("wait", false, "keep serving metrics after the replay until interrupted")
	replayCmd.Flags().Duration("close-timeout", 30*time.Second, "time allowed to flush pending records on exit")
}

// replayRecord is one line of a replay file.
type replayRecord struct {
	Event       string          `json:"event"`
	Properties  json.RawMessage `json:"properties"`
	EventID     string          `json:"eventId,omitempty"`
	EventHash   string          `json:"eventHash,omitempty"`
	AnonymousID string          `json:"anonymousId,omitempty"`
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dbURL != "" {
		cfg.StorageURL = dbURL
	}

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	useStructpb, _ := cmd.Flags().GetBool("structpb")
	wait, _ := cmd.Flags().GetBool("wait")
	closeTimeout, _ := cmd.Flags().GetDuration("close-timeout")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("serving metrics", "addr", metricsAddr)
	}

	insp, err := inspector.New(ctx, *cfg, inspector.Deps{Logger: logger, Metrics: m})
	if err != nil {
		return err
	}

	data, err := readInput(cmd, args[0])
	if err != nil {
		_ = insp.Close(context.Background())
		return err
	}

	count, replayErr := replayLines(ctx, insp, data, useStructpb)

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := insp.Close(closeCtx); err != nil {
		logger.Warn("inspector close incomplete", "error", err)
	}
	if replayErr != nil {
		return replayErr
	}
	fmt.Fprintf(cmd.OutOrStdout(), "replayed %d event(s)\n", count)

	if wait && metricsAddr != "" {
		logger.Info("replay done, waiting for interrupt")
		<-ctx.Done()
	}
	return nil
}

// replayLines tracks every record in data and returns how many it tracked.
func replayLines(ctx context.Context, insp *inspector.Inspector, data []byte, useStructpb bool) (int, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64<<10), maxReplayLine)

	count, line := 0, 0
	for scanner.Scan() {
		line++
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var rec replayRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return count, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.Event == "" {
			return count, fmt.Errorf("line %d: missing event name", line)
		}
		props, err := decodeProperties(rec.Properties, useStructpb)
		if err != nil {
			return count, fmt.Errorf("line %d: %w", line, err)
		}

		if rec.AnonymousID != "" {
			insp.SetAnonymousID(rec.AnonymousID)
		}
		if rec.EventID != "" {
			insp.TrackGeneratedEvent(rec.Event, props, rec.EventID, rec.EventHash)
		} else {
			insp.TrackSchemaFromEvent(rec.Event, props)
		}
		count++
	}
	return count, scanner.Err()
}

func decodeProperties(raw json.RawMessage, useStructpb bool) (types.Value, error) {
	if len(raw) == 0 {
		return types.Map(nil), nil
	}
	if useStructpb {
		s := &structpb.Struct{}
		if err := protojson.Unmarshal(raw, s); err != nil {
			return types.Value{}, fmt.Errorf("decode struct properties: %w", err)
		}
		return types.FromProtoStruct(s), nil
	}
	v, err := types.FromJSON(raw)
	if err != nil {
		return types.Value{}, fmt.Errorf("decode properties: %w", err)
	}
	return v, nil
}
