package main

// #region imports
import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/student-loop/internal/adapter"
	"github.com/danielpatrickdp/student-loop/internal/autopilot"
	"github.com/danielpatrickdp/student-loop/internal/curator"
	"github.com/danielpatrickdp/student-loop/internal/ledger"
	"github.com/danielpatrickdp/student-loop/internal/model"
	"github.com/danielpatrickdp/student-loop/internal/retrieval"
	"github.com/danielpatrickdp/student-loop/internal/runstore"
	"github.com/danielpatrickdp/student-loop/internal/trainer"
)

// #endregion

// #region run-config

// runConfig is the JSON configuration for the loop daemon.
type runConfig struct {
	DataDir            string  `json:"data_dir"`
	TeacherEndpoint    string  `json:"teacher_endpoint"`
	HarvestCron        string  `json:"harvest_cron"`
	HarvestPromptsFile string  `json:"harvest_prompts_file"`
	HiddenDim          int     `json:"hidden_dim"`
	QualityFloor       float64 `json:"quality_floor"`
	EvalHoldout        int     `json:"eval_holdout"`
}

func defaultRunConfig() runConfig {
	return runConfig{
		DataDir:     "data",
		HarvestCron: "@every 5m",
		HiddenDim:   64,
		EvalHoldout: 32,
	}
}

func loadRunConfig(path string) (runConfig, error) {
	config := defaultRunConfig()
	if path == "" {
		return config, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parse config: %w", err)
	}
	return config, nil
}

// #endregion run-config

// #region run-command

func runCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the continuous-learning loop daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadRunConfig(configPath)
			if err != nil {
				return err
			}
			return runLoop(config)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to JSON config file")
	return cmd
}

func runLoop(config runConfig) error {
	config.DataDir = envOr("STUDENTLOOP_DATA", config.DataDir)
	config.TeacherEndpoint = envOr("STUDENTLOOP_TEACHER", config.TeacherEndpoint)

	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}

	runID := uuid.NewString()
	log.Printf("[run] starting loop run=%s data=%s", runID, config.DataDir)

	tok := model.NewWordTokenizer()
	ref := model.NewRefModel(config.HiddenDim, tok.VocabSize())

	adapters := adapter.NewManager()
	adapters.RegisterAdapter(adapter.New("default", adapter.DefaultConfig(config.HiddenDim)))
	adapters.Activate("default")
	ref.SetAdapterFn(func(pre []float64) []float64 {
		active := adapters.Active()
		if active == nil {
			return make([]float64, len(pre))
		}
		delta, err := active.Project(pre)
		if err != nil {
			log.Printf("[run] adapter projection failed: %v", err)
			return make([]float64, len(pre))
		}
		return delta
	})

	tcfg := trainer.DefaultConfig()
	tcfg.CheckpointDir = filepath.Join(config.DataDir, "checkpoints")
	tr := trainer.New(ref, tok, adapters, tcfg)

	store, err := runstore.NewStore(filepath.Join(config.DataDir, "run.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	acfg := autopilot.DefaultConfig()
	if config.QualityFloor > 0 {
		acfg.QualityFloor = config.QualityFloor
	}
	a := autopilot.New(acfg, curator.New(curator.DefaultConfig()), tr, tok)
	a.SetLedger(ledger.NewLedger(filepath.Join(config.DataDir, "ledger.jsonl")))
	a.SetStore(store)

	trainLog := ledger.NewTrainingLog(filepath.Join(config.DataDir, "training.jsonl"))
	a.SetTrainingLog(trainLog)
	a.SetPairsLog(ledger.NewPairsLog(filepath.Join(config.DataDir, "pairs.jsonl")))

	indexPath := filepath.Join(config.DataDir, "index.json")
	index, err := retrieval.LoadFile(indexPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[run] index load failed, starting empty: %v", err)
		}
		index = retrieval.NewIndex()
	}
	a.SetRetrievalIndex(index)

	if config.TeacherEndpoint != "" {
		a.SetTeacher(model.NewHTTPTeacher(config.TeacherEndpoint, 30*time.Second))
	}

	// Restart continuity: curriculum snapshot and held-out set come from
	// prior runs.
	if rec, found, err := store.LatestCurriculum(); err != nil {
		log.Printf("[run] curriculum restore failed: %v", err)
	} else if found {
		a.SetCurriculum(autopilot.Curriculum{QualityFloor: rec.QualityFloor, PriorityTags: rec.PriorityTags})
		log.Printf("[run] restored curriculum floor=%.2f priority=%v", rec.QualityFloor, rec.PriorityTags)
	}

	examples, err := trainLog.Load()
	if err != nil {
		log.Printf("[run] training log load failed: %v", err)
	}
	if n := len(examples); n > 0 {
		holdout := config.EvalHoldout
		if holdout > n {
			holdout = n
		}
		a.SetEvalSet(examples[n-holdout:])
		if index.DocumentCount() == 0 {
			for _, ex := range examples {
				index.IngestDocument(ex.Provenance.SampleHash, ex.Prompt+" "+ex.TeacherOutput, ex.Provenance.Tags)
			}
		}
		log.Printf("[run] loaded %d persisted examples, %d held out for evaluation", n, holdout)
	}

	prompts, err := loadPrompts(config.HarvestPromptsFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Kill switch: set HARVEST_ENABLED=false to gate persisted data only.
	harvestEnabled := os.Getenv("HARVEST_ENABLED") != "false"

	scheduler := cron.New()
	if harvestEnabled && len(prompts) > 0 && config.TeacherEndpoint != "" {
		if _, err := scheduler.AddFunc(config.HarvestCron, func() {
			a.HarvestOnce(ctx, prompts, "teacher")
		}); err != nil {
			return fmt.Errorf("harvest schedule %q: %w", config.HarvestCron, err)
		}
		scheduler.Start()
		log.Printf("[run] harvest scheduled %q over %d prompts", config.HarvestCron, len(prompts))
	} else {
		log.Printf("[run] no teacher endpoint or prompts configured, gating persisted data only")
	}

	<-ctx.Done()
	log.Printf("[run] shutting down")
	// Drain any in-flight harvest before snapshotting the index, or a late
	// ingest lands after the save.
	<-scheduler.Stop().Done()
	if err := index.SaveFile(indexPath); err != nil {
		log.Printf("[run] index save failed: %v", err)
	}
	return nil
}

// loadPrompts reads one harvest prompt per line, skipping blanks.
func loadPrompts(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prompts: %w", err)
	}
	defer f.Close()

	var prompts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			prompts = append(prompts, line)
		}
	}
	return prompts, scanner.Err()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion run-command
