package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/snarg/transcript-segmenter/internal/api"
	"github.com/snarg/transcript-segmenter/internal/config"
	"github.com/snarg/transcript-segmenter/internal/model"
	"github.com/snarg/transcript-segmenter/internal/segment"
)

// buildSegmenter constructs the model and pipeline described by cfg.
func buildSegmenter(cfg config.ModelConfig, log zerolog.Logger) (*segment.Segmenter, *api.ModelInfo, error) {
	m, err := model.New(model.Config{
		InputDim:  cfg.InputDim,
		HiddenDim: cfg.HiddenDim,
		StartUnit: cfg.StartUnit,
	}, cfg.Seed)
	if err != nil {
		return nil, nil, fmt.Errorf("build model: %w", err)
	}

	var features segment.Featurizer
	switch cfg.Features {
	case "hashed":
		features = model.HashedFeatures{Dim: cfg.InputDim, Seed: cfg.Seed}
	default:
		features = model.RandomFeatures{Dim: cfg.InputDim, Seed: cfg.Seed}
	}

	segLog := log.With().Str("component", "segment").Logger()
	seg, err := segment.FromModel(m, features, cfg.Scorer == "heuristic", segment.Options{
		AlignToSentences: cfg.AlignToSentences,
		Log:              &segLog,
	})
	if err != nil {
		return nil, nil, err
	}

	info := &api.ModelInfo{
		Scorer:    cfg.Scorer,
		Features:  cfg.Features,
		Seed:      cfg.Seed,
		InputDim:  cfg.InputDim,
		HiddenDim: cfg.HiddenDim,
	}
	return seg, info, nil
}
