package extract

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"testing/iotest"
)

func mustNew(t *testing.T, opts ...Option) *Extractor {
	t.Helper()
	e, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opt  Option
	}{
		{name: "zero buffer", opt: WithBufferSize(0)},
		{name: "tiny max url length", opt: WithMaxURLLength(MinMaxURLLength - 1)},
		{name: "max url length beyond packing", opt: WithMaxURLLength(MaxQuoteLength + 2)},
		{name: "zero slots", opt: WithSlotCount(0)},
		{name: "partition smaller than a token", opt: WithPartitionSize(10)},
		{name: "zero parallelism", opt: WithParallelism(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.opt); !errors.Is(err, ErrInvalidOption) {
				t.Errorf("New() error = %v, want ErrInvalidOption", err)
			}
		})
	}

	e := mustNew(t)
	if e.MaxURLLength() != DefaultMaxURLLength {
		t.Errorf("MaxURLLength() = %d, want %d", e.MaxURLLength(), DefaultMaxURLLength)
	}
}

func TestExtractHrefs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "double and single quotes",
			in:   `<a href="/a">A</a><A HREF='/b'>B</A>`,
			want: []string{"/a", "/b"},
		},
		{
			name: "duplicates collapse in first-seen order",
			in:   `<a href="/b"></a><a href="/a"></a><a href="/b"></a>`,
			want: []string{"/b", "/a"},
		},
		{
			name: "whitespace around equals",
			in:   "<a href =\n\t'/c'>",
			want: []string{"/c"},
		},
		{
			name: "link and area tags",
			in:   `<link rel="stylesheet" href="/s.css"><area href="/map">`,
			want: []string{"/s.css", "/map"},
		},
		{name: "bare href", in: `<a href=>`, want: nil},
		{name: "unterminated", in: `<a href="`, want: nil},
		{name: "unquoted", in: `<a href=http://x>`, want: nil},
		{name: "href without equals", in: `<p>the href attribute</p>`, want: nil},
		{
			name: "percent decoding",
			in:   `<a href="/a%20b"></a><a href="/x%2">`,
			want: []string{"/a b", "/x%2"},
		},
		{
			name: "rejected values are skipped",
			in:   `<a href=" /space"></a><a href="<bad>"></a><a href="/ok">`,
			want: []string{"/ok"},
		},
		{
			name: "empty value",
			in:   `<a href="">x</a><a href="/y">`,
			want: []string{"/y"},
		},
		{
			name: "too much whitespace",
			in:   `<a href          ="/far">`,
			want: nil,
		},
	}

	e := mustNew(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := e.ExtractHrefs(context.Background(), strings.NewReader(tt.in))
			if err != nil {
				t.Fatalf("ExtractHrefs() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractHrefs_LongValues(t *testing.T) {
	t.Parallel()

	e := mustNew(t, WithMaxURLLength(32))
	fits := "/" + strings.Repeat("a", 30)    // 31 bytes, the maximum
	tooLong := "/" + strings.Repeat("b", 31) // 32 bytes
	doc := `<a href="` + tooLong + `"></a><a href="` + fits + `">`

	got, err := e.ExtractHrefs(context.Background(), strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ExtractHrefs() error = %v", err)
	}
	if want := []string{fits}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

const boundaryDoc = `<html><head><link href="/style.css" rel=stylesheet></head>
<body><a HREF='/first'>one</a> filler text <a href = "/second%20page">two</a>
<a href="https://other.example/x?a=1&b=2">ext</a> <a href=bare>no</a>
<a href="/caf%C3%A9">utf8</a><a href="/first">dup</a><a href='/escaped/it\'s'>esc</a>
<a href="/last"></a>`

func TestExtractHrefs_BoundaryInvariance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	want, err := mustNew(t).ExtractHrefs(ctx, strings.NewReader(boundaryDoc))
	if err != nil {
		t.Fatalf("ExtractHrefs() error = %v", err)
	}
	if len(want) != 7 {
		t.Fatalf("reference extraction found %d values: %q", len(want), want)
	}

	for size := 1; size <= len(boundaryDoc)+1; size++ {
		e := mustNew(t, WithBufferSize(size), WithMaxURLLength(64), WithSlotCount(2))
		got, err := e.ExtractHrefs(ctx, strings.NewReader(boundaryDoc))
		if err != nil {
			t.Fatalf("buffer %d: ExtractHrefs() error = %v", size, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("buffer %d: got %q, want %q", size, got, want)
		}
	}
}

func TestExtractHrefs_TwoReads(t *testing.T) {
	t.Parallel()

	doc := `<a href="http://example.com/page">x</a>`
	for k := 1; k < len(doc); k++ {
		e := mustNew(t, WithBufferSize(k))
		r := io.MultiReader(strings.NewReader(doc[:k]), strings.NewReader(doc[k:]))
		got, err := e.ExtractHrefs(context.Background(), r)
		if err != nil {
			t.Fatalf("split %d: error = %v", k, err)
		}
		if want := []string{"http://example.com/page"}; !reflect.DeepEqual(got, want) {
			t.Fatalf("split %d: got %q, want %q", k, got, want)
		}
	}
}

func TestExtractHrefs_SlowReaders(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := mustNew(t, WithBufferSize(16), WithMaxURLLength(64))
	want, err := e.ExtractHrefs(ctx, strings.NewReader(boundaryDoc))
	if err != nil {
		t.Fatal(err)
	}

	readers := map[string]io.Reader{
		"one byte": iotest.OneByteReader(strings.NewReader(boundaryDoc)),
		"half":     iotest.HalfReader(strings.NewReader(boundaryDoc)),
		"data+EOF": iotest.DataErrReader(strings.NewReader(boundaryDoc)),
	}
	for name, r := range readers {
		got, err := e.ExtractHrefs(ctx, r)
		if err != nil {
			t.Fatalf("%s: error = %v", name, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s: got %q, want %q", name, got, want)
		}
	}
}

func TestExtract_ReadError(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader(`<a href="/a">`), iotest.ErrReader(errBoom))
	_, err := mustNew(t).ExtractHrefs(context.Background(), r)
	if !errors.Is(err, errBoom) {
		t.Errorf("error = %v, want %v", err, errBoom)
	}
}

func TestExtract_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := mustNew(t).ExtractHrefs(ctx, strings.NewReader(`<a href="/a">`))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestScratch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := mustNew(t, WithSlotCount(1))

	t.Run("reused across documents", func(t *testing.T) {
		t.Parallel()
		s := e.NewScratch()
		defer s.Release()

		for i, doc := range []string{`<a href="/1"><a href="/2"><a href="/3">`, `<a href="/4">`} {
			got, err := e.Extract(ctx, strings.NewReader(doc), s)
			if err != nil {
				t.Fatalf("doc %d: %v", i, err)
			}
			if len(got) == 0 {
				t.Fatalf("doc %d: no values", i)
			}
		}
	})

	t.Run("released scratch is rejected", func(t *testing.T) {
		t.Parallel()
		s := e.NewScratch()
		s.Release()
		s.Release()
		if _, err := e.Extract(ctx, strings.NewReader(""), s); !errors.Is(err, ErrScratchReleased) {
			t.Errorf("error = %v, want ErrScratchReleased", err)
		}
	})

	t.Run("scratch from another geometry", func(t *testing.T) {
		t.Parallel()
		other := mustNew(t, WithMaxURLLength(128))
		s := other.NewScratch()
		defer s.Release()
		if _, err := e.Extract(ctx, strings.NewReader(""), s); !errors.Is(err, ErrScratchMismatch) {
			t.Errorf("error = %v, want ErrScratchMismatch", err)
		}
	})

	t.Run("many values through one slot", func(t *testing.T) {
		t.Parallel()
		var doc bytes.Buffer
		want := make([]string, 0, 50)
		for i := range 50 {
			v := "/p" + strings.Repeat("x", i)
			want = append(want, v)
			doc.WriteString(`<a href="` + v + `">`)
		}
		got, err := e.ExtractHrefs(ctx, &doc)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %d values, want %d", len(got), len(want))
		}
	})
}
