package repository

import (
	"regexp"
	"strings"
)

// Dialect SQL-диалект хранилища
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

var placeholderRe = regexp.MustCompile(`\$\d+`)

// Rebind переводит плейсхолдеры $N в формат диалекта. Аргументы всегда идут по порядку.
func (d Dialect) Rebind(query string) string {
	if d == SQLite {
		return placeholderRe.ReplaceAllString(query, "?")
	}
	return query
}

// decimalType тип колонки для денежных значений. SQLite хранит их текстом без потерь.
func (d Dialect) decimalType() string {
	if d == SQLite {
		return "TEXT"
	}
	return "NUMERIC(38, 18)"
}

func (d Dialect) serialType() string {
	if d == SQLite {
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return "BIGSERIAL PRIMARY KEY"
}

// Expand подставляет типы колонок диалекта в DDL
func (d Dialect) Expand(ddl string) string {
	r := strings.NewReplacer("{{decimal}}", d.decimalType(), "{{serial}}", d.serialType())
	return r.Replace(ddl)
}
