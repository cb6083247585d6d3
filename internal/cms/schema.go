package cms

import _ "embed"

// Schema is the content store DDL, generated from the migrations.
//
//go:embed schema.sql
var Schema string
