package templating

import (
	"context"
	"fmt"

	"github.com/CTAG07/Lyrian/pkg/markov"
)

// generate produces count lines of the given length. Limits from the current
// config are enforced before the model is touched.
func (tm *TemplateManager) generate(modelName string, length, count int, metric markov.Metric, seed string) ([]*markov.Lyric, error) {
	config := tm.GetConfig()
	if length > config.MaxLength {
		return nil, fmt.Errorf("%w: line length %d exceeds the limit of %d", markov.ErrInvalidQuery, length, config.MaxLength)
	}
	if count > config.MaxLines {
		return nil, fmt.Errorf("%w: %d lines exceed the limit of %d", markov.ErrInvalidQuery, count, config.MaxLines)
	}

	ctx := context.Background()
	model, err := tm.Model(ctx, modelName)
	if err != nil {
		return nil, err
	}

	opts := []markov.GenerateOption{
		markov.WithMaxAttempts(config.MaxAttempts),
		markov.WithMaxSteps(config.MaxSteps),
	}
	if seed != "" {
		opts = append(opts, markov.WithSeed(seed))
	}

	lines, err := tm.gen.GenerateLines(ctx, model, length, count, metric, opts...)
	if err != nil {
		tm.logger.Error("form generation failed", "model", modelName, "length", length, "metric", metric.String(), "error", err)
		return nil, err
	}
	return lines, nil
}

// metric resolves the metric named by form data, falling back to the
// configured default.
func (tm *TemplateManager) metric(name string) (markov.Metric, error) {
	if name == "" {
		name = tm.GetConfig().DefaultMetric
	}
	return markov.ParseMetric(name)
}

// moraLine generates a line of exactly n morae from the named model.
func (tm *TemplateManager) moraLine(modelName string, n int) (string, error) {
	lines, err := tm.generate(modelName, n, 1, markov.MetricMora, "")
	if err != nil {
		return "", err
	}
	return lines[0].Join(), nil
}

// syllableLine generates a line of exactly n syllables from the named model.
func (tm *TemplateManager) syllableLine(modelName string, n int) (string, error) {
	lines, err := tm.generate(modelName, n, 1, markov.MetricSyllable, "")
	if err != nil {
		return "", err
	}
	return lines[0].Join(), nil
}

// line generates a line of length n using the model, metric and seed of the
// form data.
func (tm *TemplateManager) line(data FormData, n int) (string, error) {
	lines, err := tm.lines(data, n, 1)
	if err != nil {
		return "", err
	}
	return lines[0], nil
}

// lines generates count lines of length n using the form data.
func (tm *TemplateManager) lines(data FormData, n, count int) ([]string, error) {
	metric, err := tm.metric(data.Metric)
	if err != nil {
		return nil, err
	}
	lyrics, err := tm.generate(data.Model, n, count, metric, data.Seed)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(lyrics))
	for i, l := range lyrics {
		out[i] = l.Join()
	}
	return out, nil
}

// Lyric is one generated line together with its katakana reading.
type Lyric struct {
	Text    string
	Reading string
}

// lyric generates a line like line does and returns it with its reading, so a
// form can print a pronunciation guide for the same line:
//
//	{{with lyric . 5}}{{.Text}} ({{.Reading}}){{end}}
func (tm *TemplateManager) lyric(data FormData, n int) (Lyric, error) {
	metric, err := tm.metric(data.Metric)
	if err != nil {
		return Lyric{}, err
	}
	lyrics, err := tm.generate(data.Model, n, 1, metric, data.Seed)
	if err != nil {
		return Lyric{}, err
	}
	return Lyric{Text: lyrics[0].Join(), Reading: lyrics[0].Reading()}, nil
}
