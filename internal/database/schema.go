package database

import _ "embed"

// Schema is the record index DDL, generated from the migrations.
//
//go:embed schema.sql
var Schema string
