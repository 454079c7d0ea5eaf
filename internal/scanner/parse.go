package scanner

import (
	"errors"

	"github.com/hoistjs/hoist/internal/logger"
	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

// Parses the source into a syntax tree. A syntax error is returned as a
// parse-class diagnostic pointing at the offending line.
func Parse(source *logger.Source) (*js.AST, *logger.Msg) {
	tree, err := js.Parse(parse.NewInputString(source.Contents), js.Options{})
	if err == nil {
		return tree, nil
	}

	msg := &logger.Msg{Kind: logger.Error, Class: logger.ClassParse, Text: err.Error()}
	var parseErr *parse.Error
	if errors.As(err, &parseErr) {
		msg.Text = parseErr.Message
		loc := source.LocOfLineColumn(parseErr.Line, parseErr.Column)
		msg.Location = logger.LocationOrNil(source, logger.Range{Loc: loc})
	}
	return nil, msg
}
