package script

import (
	"fmt"

	"github.com/cbegin/patterncycle-go/internal/join"
	"github.com/cbegin/patterncycle-go/internal/pattern"
	"github.com/cbegin/patterncycle-go/internal/prand"
	"github.com/cbegin/patterncycle-go/internal/rational"
	"github.com/cbegin/patterncycle-go/internal/signal"
	"github.com/cbegin/patterncycle-go/internal/voice"
)

func patVal(p pattern.Pattern) Value { return Value{Kind: KindPattern, Pat: p} }

func patternsOf(args []Value) ([]pattern.Pattern, error) {
	pats := make([]pattern.Pattern, len(args))
	for i, a := range args {
		p, err := a.ToPattern()
		if err != nil {
			return nil, err
		}
		pats[i] = p
	}
	return pats, nil
}

// constructors are the script's bare function calls: `s("bd sd")`,
// `stack(a, b)`, `sine()`. Each resolves its arguments against the
// operator table that backs the host-language API (spec section 6).
var constructors = map[string]func(args []Value) (Value, error){
	"s": func(args []Value) (Value, error) {
		p, err := arg(args, 0)
		if err != nil {
			return Value{}, err
		}
		return patVal(voice.Sound(p)), nil
	},
	"sound": func(args []Value) (Value, error) { return constructors["s"](args) },
	"n": func(args []Value) (Value, error) {
		p, err := arg(args, 0)
		if err != nil {
			return Value{}, err
		}
		return patVal(voice.Note(p)), nil
	},
	"note": func(args []Value) (Value, error) { return constructors["n"](args) },
	"freq": func(args []Value) (Value, error) {
		p, err := arg(args, 0)
		if err != nil {
			return Value{}, err
		}
		return patVal(voice.FreqHz(p)), nil
	},
	"silence": func(args []Value) (Value, error) { return patVal(pattern.Silence), nil },
	"seq": func(args []Value) (Value, error) {
		pats, err := patternsOf(args)
		if err != nil {
			return Value{}, err
		}
		return patVal(pattern.Fastcat(pats)), nil
	},
	"cat": func(args []Value) (Value, error) {
		pats, err := patternsOf(args)
		if err != nil {
			return Value{}, err
		}
		return patVal(pattern.Slowcat(pats)), nil
	},
	"stack": func(args []Value) (Value, error) {
		pats, err := patternsOf(args)
		if err != nil {
			return Value{}, err
		}
		return patVal(pattern.Stack(pats)), nil
	},
	"sine":   func(args []Value) (Value, error) { return patVal(signal.Sine()), nil },
	"saw":    func(args []Value) (Value, error) { return patVal(signal.Saw()), nil },
	"tri":    func(args []Value) (Value, error) { return patVal(signal.Tri()), nil },
	"square": func(args []Value) (Value, error) { return patVal(signal.Square()), nil },
}

func arg(args []Value, i int) (pattern.Pattern, error) {
	if i >= len(args) {
		return pattern.Pattern{}, fmt.Errorf("script: missing argument %d", i)
	}
	return args[i].ToPattern()
}

// methods are the receiver-style calls of the method-chain sugar
// (`p.fast(2).rev()`), backing the same C4/C5/C6/C8 operators exposed
// standalone above.
var methods = map[string]func(recv Value, args []Value) (Value, error){
	"fast": func(recv Value, args []Value) (Value, error) {
		p, r, err := recvRational(recv, args)
		if err != nil {
			return Value{}, err
		}
		out, err := pattern.Fast(r, p)
		if err != nil {
			return Value{}, err
		}
		return patVal(out), nil
	},
	"slow": func(recv Value, args []Value) (Value, error) {
		p, r, err := recvRational(recv, args)
		if err != nil {
			return Value{}, err
		}
		out, err := pattern.Slow(r, p)
		if err != nil {
			return Value{}, err
		}
		return patVal(out), nil
	},
	"rev": func(recv Value, args []Value) (Value, error) {
		p, err := recv.ToPattern()
		if err != nil {
			return Value{}, err
		}
		return patVal(pattern.Rev(p)), nil
	},
	"rotl": func(recv Value, args []Value) (Value, error) {
		p, r, err := recvRational(recv, args)
		if err != nil {
			return Value{}, err
		}
		return patVal(pattern.RotL(r, p)), nil
	},
	"rotr": func(recv Value, args []Value) (Value, error) {
		p, r, err := recvRational(recv, args)
		if err != nil {
			return Value{}, err
		}
		return patVal(pattern.RotR(r, p)), nil
	},
	"zoom": func(recv Value, args []Value) (Value, error) {
		p, err := recv.ToPattern()
		if err != nil {
			return Value{}, err
		}
		if len(args) < 2 {
			return Value{}, fmt.Errorf("script: zoom needs (begin, end)")
		}
		a, err := args[0].toRational()
		if err != nil {
			return Value{}, err
		}
		b, err := args[1].toRational()
		if err != nil {
			return Value{}, err
		}
		out, err := pattern.Zoom(a, b, p)
		if err != nil {
			return Value{}, err
		}
		return patVal(out), nil
	},
	"every": func(recv Value, args []Value) (Value, error) {
		p, err := recv.ToPattern()
		if err != nil {
			return Value{}, err
		}
		if len(args) < 2 {
			return Value{}, fmt.Errorf("script: every needs (n, f)")
		}
		n, err := args[0].toInt()
		if err != nil {
			return Value{}, err
		}
		f, err := args[1].toFunc()
		if err != nil {
			return Value{}, err
		}
		return patVal(pattern.Every(n, f, p)), nil
	},
	"iter": func(recv Value, args []Value) (Value, error) {
		p, n, err := recvInt(recv, args)
		if err != nil {
			return Value{}, err
		}
		return patVal(pattern.Iter(n, p)), nil
	},
	"superimpose": func(recv Value, args []Value) (Value, error) {
		p, err := recv.ToPattern()
		if err != nil {
			return Value{}, err
		}
		if len(args) < 1 {
			return Value{}, fmt.Errorf("script: superimpose needs (f)")
		}
		f, err := args[0].toFunc()
		if err != nil {
			return Value{}, err
		}
		return patVal(pattern.Superimpose(f, p)), nil
	},
	"degradeby": func(recv Value, args []Value) (Value, error) {
		p, err := recv.ToPattern()
		if err != nil {
			return Value{}, err
		}
		if len(args) < 1 {
			return Value{}, fmt.Errorf("script: degradeBy needs (x)")
		}
		x, err := args[0].toFloat()
		if err != nil {
			return Value{}, err
		}
		return patVal(prand.DegradeBy(p.Seed(), x, p)), nil
	},
	"sometimesby": func(recv Value, args []Value) (Value, error) {
		p, err := recv.ToPattern()
		if err != nil {
			return Value{}, err
		}
		if len(args) < 2 {
			return Value{}, fmt.Errorf("script: sometimesBy needs (x, f)")
		}
		x, err := args[0].toFloat()
		if err != nil {
			return Value{}, err
		}
		f, err := args[1].toFunc()
		if err != nil {
			return Value{}, err
		}
		return patVal(prand.SometimesBy(p.Seed(), x, f, p)), nil
	},
	"euclid": func(recv Value, args []Value) (Value, error) {
		p, err := recv.ToPattern()
		if err != nil {
			return Value{}, err
		}
		if len(args) < 2 {
			return Value{}, fmt.Errorf("script: euclid needs (k, n)")
		}
		k, err := args[0].toInt()
		if err != nil {
			return Value{}, err
		}
		n, err := args[1].toInt()
		if err != nil {
			return Value{}, err
		}
		return patVal(pattern.Euclid(k, n, p)), nil
	},
	"segment": func(recv Value, args []Value) (Value, error) {
		p, n, err := recvInt(recv, args)
		if err != nil {
			return Value{}, err
		}
		return patVal(signal.Segment(n, p)), nil
	},
	"pan": func(recv Value, args []Value) (Value, error) {
		p, err := recv.ToPattern()
		if err != nil {
			return Value{}, err
		}
		if len(args) < 1 {
			return Value{}, fmt.Errorf("script: pan needs a value")
		}
		ctrl, err := args[0].ToPattern()
		if err != nil {
			return Value{}, err
		}
		return patVal(voice.Apply(p, voice.Pan(ctrl))), nil
	},
	"gain": func(recv Value, args []Value) (Value, error) {
		p, err := recv.ToPattern()
		if err != nil {
			return Value{}, err
		}
		if len(args) < 1 {
			return Value{}, fmt.Errorf("script: gain needs a value")
		}
		ctrl, err := args[0].ToPattern()
		if err != nil {
			return Value{}, err
		}
		return patVal(voice.Apply(p, voice.Gain(ctrl))), nil
	},
	"jux": func(recv Value, args []Value) (Value, error) {
		p, err := recv.ToPattern()
		if err != nil {
			return Value{}, err
		}
		if len(args) < 1 {
			return Value{}, fmt.Errorf("script: jux needs (f)")
		}
		f, err := args[0].toFunc()
		if err != nil {
			return Value{}, err
		}
		left := voice.Apply(p, voice.Pan(pattern.Atom(0.0)))
		right := voice.Apply(f(p), voice.Pan(pattern.Atom(1.0)))
		return patVal(pattern.Stack([]pattern.Pattern{left, right})), nil
	},
	"innerjoin": func(recv Value, args []Value) (Value, error) {
		p, err := recv.ToPattern()
		if err != nil {
			return Value{}, err
		}
		return patVal(join.InnerJoin(p)), nil
	},
	"outerjoin": func(recv Value, args []Value) (Value, error) {
		p, err := recv.ToPattern()
		if err != nil {
			return Value{}, err
		}
		return patVal(join.OuterJoin(p)), nil
	},
}

func recvRational(recv Value, args []Value) (pattern.Pattern, rational.Rational, error) {
	p, err := recv.ToPattern()
	if err != nil {
		return pattern.Pattern{}, rational.Rational{}, err
	}
	if len(args) < 1 {
		return pattern.Pattern{}, rational.Rational{}, fmt.Errorf("script: missing numeric argument")
	}
	r, err := args[0].toRational()
	if err != nil {
		return pattern.Pattern{}, rational.Rational{}, err
	}
	return p, r, nil
}

func recvInt(recv Value, args []Value) (pattern.Pattern, int, error) {
	p, err := recv.ToPattern()
	if err != nil {
		return pattern.Pattern{}, 0, err
	}
	if len(args) < 1 {
		return pattern.Pattern{}, 0, fmt.Errorf("script: missing integer argument")
	}
	n, err := args[0].toInt()
	if err != nil {
		return pattern.Pattern{}, 0, err
	}
	return p, n, nil
}
