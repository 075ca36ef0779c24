package main

import (
	"flag"
	"os"

	"github.com/m-lab/go/cloud/bqx"
	"github.com/m-lab/go/rtx"
	"github.com/splitbench/splitbench/pkg/offload/model"
	"github.com/splitbench/splitbench/pkg/sweep"

	"cloud.google.com/go/bigquery"
)

var (
	offloadSchema string
	sweepSchema   string
)

func init() {
	flag.StringVar(&offloadSchema, "offload", "/var/spool/datatypes/offload.json", "filename to write offload schema")
	flag.StringVar(&sweepSchema, "sweep", "/var/spool/datatypes/sweep.json", "filename to write sweep schema")
}

func main() {
	flag.Parse()
	// Generate and save schemas for autoloading.
	// offload schema.
	sessionArchive := model.SessionArchive{}
	sch, err := bigquery.InferSchema(sessionArchive)
	rtx.Must(err, "failed to generate offload schema")
	sch = bqx.RemoveRequired(sch)
	b, err := sch.ToJSONFields()
	rtx.Must(err, "failed to marshal offload schema")
	err = os.WriteFile(offloadSchema, b, 0o644)
	rtx.Must(err, "failed to write offload schema")
	// sweep schema.
	sweepResult := sweep.Result{}
	sch, err = bigquery.InferSchema(sweepResult)
	rtx.Must(err, "failed to generate sweep schema")
	sch = bqx.RemoveRequired(sch)
	b, err = sch.ToJSONFields()
	rtx.Must(err, "failed to marshal sweep schema")
	err = os.WriteFile(sweepSchema, b, 0o644)
	rtx.Must(err, "failed to write sweep schema")
}
