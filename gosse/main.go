/*

Gosse fits geographic state dependent speciation and extinction
models on a phylogenetic tree and reconstructs ancestral ranges.

The basic usage looks like this:

	gosse tree.nwk ranges.tsv

, this will fit the three-state geographic model with the default
optimizer (LBFGS-B).

Hidden rate classes, jump dispersal and the character-independent
null model are enabled with flags:

	gosse --hidden 1 --jumps tree.nwk ranges.tsv
	gosse --hidden 1 --null tree.nwk ranges.tsv

To see all the options run:

	gosse --help

*/
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/op/go-logging"
	bolt "go.etcd.io/bbolt"
	"gopkg.in/alecthomas/kingpin.v2"

	"bitbucket.org/Davydov/gosse/checkpoint"
	"bitbucket.org/Davydov/gosse/dist"
	"bitbucket.org/Davydov/gosse/gmodel"
	"bitbucket.org/Davydov/gosse/optimize"
	"bitbucket.org/Davydov/gosse/state"
	"bitbucket.org/Davydov/gosse/tree"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("gosse")
var formatter = logging.MustStringFormatter(`%{message}`)

// command-line options
var (
	// application
	app = kingpin.New("gosse", "geographic state speciation and extinction models").Version(version)

	// input tree and tip ranges
	treeFileName = app.Arg("tree", "phylogenetic tree").Required().ExistingFile()
	obsFileName  = app.Arg("ranges", "tip ranges (one 'name range' pair per line)").Required().ExistingFile()

	// model structure
	nHidden = app.Flag("hidden", "number of extra hidden rate classes").Default("0").Int()
	jumps   = app.Flag("jumps", "allow jump dispersal between the endemic areas").Bool()
	sepExt  = app.Flag("sepext", "decouple extirpation from extinction (separate range contraction rates)").Bool()
	null    = app.Flag("null", "character-independent (null) model: range transition rates "+
		"shared across the hidden classes").Bool()
	noClado = app.Flag("noclado", "disable range inheritance at widespread speciation").Bool()
	tie     = app.Flag("tie", "tie transition-rate labels, groups separated by ';', "+
		"labels by ',' (e.g. '1,2;3,4')").String()

	// likelihood settings
	rootPolicy = app.Flag("root", "root state weighting").Default("observed").
			Enum("uniform", "equilibrium", "observed", "given")
	rootWeights = app.Flag("rootweights", "comma-separated root state weights for -root given").String()
	survival    = app.Flag("survival", "condition the likelihood on both root lineages surviving").Bool()
	sampling    = app.Flag("sampling", "comma-separated sampling fractions for ranges A,B,AB").
			Default("1,1,1").String()
	alpha = app.Flag("alpha", "gamma shape spreading the starting turnover over the hidden classes").
		Default("0").Float64()
	relTol = app.Flag("rtol", "relative tolerance of the branch integrator").Default("0").Float64()
	absTol = app.Flag("atol", "absolute tolerance of the branch integrator").Default("0").Float64()

	// optimizer parameters
	iterations = app.Flag("iter", "number of iterations").Default("10000").Int()
	report     = app.Flag("report", "report every N iterations").Default("10").Int()
	method     = app.Flag("method", "optimization method to use "+
		"(lbfgsb: limited-memory Broyden-Fletcher-Goldfarb-Shanno with bounding constraints, "+
		"simplex: downhill simplex, "+
		"none: just compute likelihood, no optimization"+
		")").Default("lbfgsb").Enum("lbfgsb", "simplex", "none")

	// checkpoints
	checkpointFileName = app.Flag("checkpoint", "checkpoint database file").String()
	checkpointSeconds  = app.Flag("ckfreq", "checkpoint saving interval in seconds").Default("30").Float64()

	// technical
	nThreads   = app.Flag("nt", "number of threads to use").Int()
	cpuProfile = app.Flag("cpuprofile", "write cpu profile to file").String()

	// input/output
	outLogF    = app.Flag("log", "write log to a file").String()
	ancestralF = app.Flag("ancestral", "write marginal ancestral range probabilities to a file").String()
	logLevel   = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
			Default("notice").
			Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()
)

// parseFloats parses a comma-separated list of numbers.
func parseFloats(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// parseGroups parses label groups for rate tying, e.g. "1,2;3,4".
func parseGroups(s string) ([][]int, error) {
	var groups [][]int
	for _, gs := range strings.Split(s, ";") {
		var group []int
		for _, ls := range strings.Split(gs, ",") {
			l, err := strconv.Atoi(strings.TrimSpace(ls))
			if err != nil {
				return nil, err
			}
			group = append(group, l)
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// getOptimizerFromString returns an optimizer from a string.
func getOptimizerFromString(method string) (optimize.Optimizer, error) {
	switch method {
	case "lbfgsb":
		return optimize.NewLBFGSB(), nil
	case "simplex":
		return optimize.NewDS(), nil
	case "none":
		return optimize.NewNone(), nil
	}
	return nil, fmt.Errorf("Unknown optimization method: %s", method)
}

func run() (summary *RunSummary) {
	startTime := time.Now()
	summary = &RunSummary{}

	treeFile, err := os.Open(*treeFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer treeFile.Close()
	t, err := tree.ParseNewick(treeFile)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Read tree with %d tips", t.NLeaves())
	log.Debug(t.FullString())

	obsFile, err := os.Open(*obsFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer obsFile.Close()
	observations, err := state.ReadObservations(obsFile)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Read %d tip range observations", len(observations))

	sp, err := state.NewSpace(*nHidden)
	if err != nil {
		log.Fatal(err)
	}
	idx := state.BuildIndex(sp, state.Flags{
		MakeNull:            *null,
		IncludeJumps:        *jumps,
		SeparateExtirpation: *sepExt,
	})
	if *tie != "" {
		groups, err := parseGroups(*tie)
		if err != nil {
			log.Fatal("Error parsing label groups:", err)
		}
		idx, err = idx.Merge(groups)
		if err != nil {
			log.Fatal("Error tying rates:", err)
		}
	}
	log.Infof("State space: %d states, %d free transition rates", idx.NStates(), idx.NLabels())
	log.Debug(idx)
	summary.NStates = idx.NStates()

	cfg := gmodel.DefaultConfig()
	cfg.CladoEvents = !*noClado
	cfg.ConditionOnSurvival = *survival
	cfg.Root, err = gmodel.RootPolicyFromString(*rootPolicy)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Root == gmodel.RootGiven {
		cfg.RootWeights, err = parseFloats(*rootWeights)
		if err != nil {
			log.Fatal("Error parsing root weights:", err)
		}
	}
	f, err := parseFloats(*sampling)
	if err != nil || len(f) != state.NRanges {
		log.Fatal("Expected three comma-separated sampling fractions")
	}
	copy(cfg.Sampling[:], f)
	if *relTol > 0 {
		cfg.Solver.RelTol = *relTol
	}
	if *absTol > 0 {
		cfg.Solver.AbsTol = *absTol
	}
	log.Infof("Root policy: %v", cfg.Root)

	m, err := gmodel.NewModel(t, idx, observations, cfg)
	if err != nil {
		log.Fatal(err)
	}

	if *alpha > 0 && sp.NClasses() > 1 {
		multipliers, err := dist.RateClasses(*alpha, sp.NClasses())
		if err != nil {
			log.Fatal(err)
		}
		log.Infof("Hidden class turnover multipliers: %v", multipliers)
		for i := 0; i < sp.NStates(); i++ {
			k := sp.HiddenOf(i)
			tau := 0.2
			if sp.RangeOf(i) == state.RangeAB {
				tau = 0.4
			}
			if err := m.SetTurnover(i, tau*multipliers[k]); err != nil {
				log.Fatal(err)
			}
		}
	}

	log.Infof("Model has %d parameters.", len(m.GetFloatParameters()))

	opt, err := getOptimizerFromString(*method)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Using %s optimization.", *method)

	if *checkpointFileName != "" {
		db, err := bolt.Open(*checkpointFileName, 0666, nil)
		if err != nil {
			log.Fatal("Error opening checkpoint file:", err)
		}
		defer db.Close()
		key := []byte(strings.Join(os.Args[1:], " "))
		opt.SetCheckpoint(checkpoint.NewStore(db, key, *checkpointSeconds))
	}

	opt.SetOptimizable(m)
	opt.SetReportPeriod(*report)
	opt.WatchSignals(os.Interrupt)

	opt.Run(*iterations)

	summary.MaxLnL = opt.GetMaxL()
	summary.MaxLParameters = m.GetFloatParameters().ValuesMap()
	summary.NCalls = opt.GetNCalls()

	if *ancestralF != "" {
		writeAncestral(m, *ancestralF)
	}

	endTime := time.Now()

	deltaT := endTime.Sub(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.Time = deltaT.Seconds()

	return
}

// writeAncestral writes the marginal ancestral range probabilities as
// a tab-separated table, one node per line.
func writeAncestral(m *gmodel.Model, fileName string) {
	marginals, err := m.Marginals()
	if err != nil {
		log.Error("Error reconstructing ancestral states:", err)
		return
	}
	f, err := os.Create(fileName)
	if err != nil {
		log.Error("Error creating ancestral states file:", err)
		return
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()

	names := m.Index().Space.StateNames()
	fmt.Fprintf(w, "node\tname\t%s\n", strings.Join(names, "\t"))
	for node := range m.Tree().Walker(nil) {
		fmt.Fprintf(w, "%d\t%s", node.Id, node.Name)
		for _, v := range marginals[node.Id] {
			fmt.Fprintf(w, "\t%g", v)
		}
		fmt.Fprintln(w)
	}
	log.Noticef("Wrote ancestral range probabilities to %s", fileName)
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	logging.SetLevel(level, "gosse")
	logging.SetLevel(level, "gmodel")
	logging.SetLevel(level, "optimize")
	logging.SetLevel(level, "checkpoint")

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *nThreads > 0 {
		runtime.GOMAXPROCS(*nThreads)
	}
	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.\n", effectiveNThreads)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	summary := run()
	summary.NThreads = effectiveNThreads
	summary.Version = version
	summary.CommandLine = os.Args

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			f, err := os.Create(*jsonF)
			if err != nil {
				log.Error("Error creating json output file:", err)
			} else {
				f.Write(j)
				f.Close()
			}
		}
	}
}
