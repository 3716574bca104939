package db

import (
	"go.uber.org/zap"

	"cmdvault/runner"
)

// Recorder stores executed commands. When the command came from a stored
// template, TemplateID names it so its last use and parameter values are
// remembered too.
type Recorder struct {
	DB         *DB
	TemplateID int64
	Logger     *zap.Logger
}

func (r *Recorder) Save(rec runner.Record) (int64, error) {
	id, err := r.DB.Save(rec.Command, rec.ExitCode, rec.Dir, rec.Tags)
	if err != nil {
		return 0, err
	}

	if r.TemplateID != 0 && r.TemplateID != id {
		if err := r.DB.UpdateLastUsed(r.TemplateID, rec.Binding); err != nil {
			// The execution itself is already stored.
			if r.Logger != nil {
				r.Logger.Warn("failed to update template last use",
					zap.Int64("template_id", r.TemplateID), zap.Error(err))
			}
		}
	} else if len(rec.Binding) > 0 {
		if err := r.DB.UpdateLastUsed(id, rec.Binding); err != nil {
			return id, err
		}
	}
	return id, nil
}
