package cli

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"strings"
	"testing"

	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/testutil"
)

type flagApp struct {
	name string
	args []string
}

func (a *flagApp) Flags(fs *flag.FlagSet, getenv func(string) string) {
	fs.StringVar(&a.name, "name", getenv("NAME"), "Name to use.")
}

func (a *flagApp) Run(_ context.Context, env *Env) error {
	a.args = env.Args
	return nil
}

func testEnv(args []string, vars map[string]string) (*Env, *bytes.Buffer) {
	var stderr bytes.Buffer
	return &Env{
		Args:   args,
		Getenv: func(k string) string { return vars[k] },
		Stdin:  strings.NewReader(""),
		Stdout: new(bytes.Buffer),
		Stderr: &stderr,
	}, &stderr
}

func TestRunFlags(t *testing.T) {
	t.Parallel()

	app := new(flagApp)
	env, _ := testEnv([]string{"-name", "flag", "rest"}, map[string]string{"NAME": "env"})
	if err := Run(t.Context(), app, env); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, app.name, "flag")
	testutil.AssertEqual(t, app.args, []string{"rest"})

	app = new(flagApp)
	env, _ = testEnv(nil, map[string]string{"NAME": "env"})
	if err := Run(t.Context(), app, env); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, app.name, "env")
}

func TestRunVersion(t *testing.T) {
	t.Parallel()

	env, stderr := testEnv([]string{"-version"}, nil)
	err := Run(t.Context(), AppFunc(func(context.Context, *Env) error {
		t.Fatal("app must not run")
		return nil
	}), env)
	if !errors.Is(err, ErrExitVersion) {
		t.Fatalf("Run() = %v, want ErrExitVersion", err)
	}
	if isPrintableError(err) {
		t.Fatal("version exit error must not be printed")
	}
	if stderr.Len() == 0 {
		t.Fatal("version must be printed to stderr")
	}
}

func TestRunHelp(t *testing.T) {
	SetDocComment([]byte("/*\nTest does testing.\n*/\npackage main\n"))
	defer SetDocComment(nil)

	env, stderr := testEnv([]string{"-h"}, nil)
	err := Run(t.Context(), new(flagApp), env)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("Run() = %v, want flag.ErrHelp", err)
	}
	for _, want := range []string{"Test does testing.", "Available flags:", "-name"} {
		if !strings.Contains(stderr.String(), want) {
			t.Errorf("stderr %q does not contain %q", stderr.String(), want)
		}
	}
}

func TestPrintableError(t *testing.T) {
	t.Parallel()

	testutil.AssertEqual(t, isPrintableError(errors.New("boom")), true)
	testutil.AssertEqual(t, isPrintableError(ErrInvalidArgs), true)
	testutil.AssertEqual(t, isPrintableError(&unprintableError{errors.New("boom")}), false)
}
