package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"

	_ "github.com/mxk/go-sqlite/sqlite3"

	vmc "github.com/JiahaoYao/vmcnet"
	"github.com/JiahaoYao/vmcnet/bench"
	"github.com/JiahaoYao/vmcnet/energy"
	"github.com/JiahaoYao/vmcnet/natgrad"
	"github.com/JiahaoYao/vmcnet/sample"
)

var (
	nstep  = flag.Int("steps", 300, "outer optimization steps")
	nwalk  = flag.Int("walkers", 256, "walker ensemble size")
	nburn  = flag.Int("burn", 200, "burn-in sweeps")
	dbfile = flag.String("db", "", "sqlite file for per-step diagnostics")
	seed   = flag.Uint64("seed", 7, "sampler random seed")
)

func main() {
	flag.Parse()

	var db *sql.DB
	if *dbfile != "" {
		var err error
		db, err = sql.Open("sqlite3", *dbfile)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
	}

	run("harmonic oscillator", bench.HarmonicOscillator{NDim: 1}, bench.Gaussian{}, []float64{0.5}, db)
	run("hydrogen", bench.Hydrogen{}, bench.Slater{}, []float64{1.4}, db)
}

func run(name string, sys bench.System, psi vmc.Ansatz, params []float64, db *sql.DB) {
	solv := &vmc.Solver{
		Psi:     psi,
		Ham:     sys,
		Params:  params,
		Sampler: sample.New(psi, sample.Seed(*seed)),
		Eval:    &energy.Evaluator{Psi: psi, Ham: sys, Ev: vmc.PoolEvaler{}},
		Est:     &energy.Estimator{},
		Precond: natgrad.NewState(),
		LR:      natgrad.InvDecay(0.1, 100),
		Nwalk:   *nwalk,
		NBurn:   *nburn,
		MaxStep: *nstep,
		Db:      db,
	}

	fmt.Printf("%v: exact ground-state energy %v\n", name, sys.Exact())
	for solv.Next() {
		rec := solv.Stats()
		if rec.Step%20 == 0 {
			fmt.Printf("  step %4d  E = %9.6f +/- %.6f  acc %.2f  damping %.2e\n",
				rec.Step, rec.Energy.Clipped, rec.Energy.StdErr, rec.Acceptance, rec.Damping)
		}
	}
	if err := solv.Err(); err != nil {
		log.Fatal(err)
	}

	rec := solv.Stats()
	fmt.Printf("  final E = %v (params %v)\n", rec.Energy.Clipped, solv.Params)
}
