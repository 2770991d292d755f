package loki

// ReplaceSubexpr returns a copy of e with every occurrence of sub replaced by
// repl. Replacement happens bottom-up so replaced subtrees are not revisited.
func (e Expr) ReplaceSubexpr(sub, repl Expr) Expr {
	return Evaluate[Expr](&replacer{sub: sub, repl: repl}, e)
}

// replacer rebuilds an expression, substituting matching subtrees.
type replacer struct {
	sub, repl Expr
}

func (r *replacer) swap(e Expr) Expr {
	if e.Equal(r.sub) {
		return r.repl
	}
	return e
}

func (r *replacer) EvalOp0(e LinearExpr) Expr {
	return r.swap(Expr{e})
}

func (r *replacer) EvalOp1(x Expr, e LinearExpr) Expr {
	return r.swap(Op1(x, e))
}

func (r *replacer) EvalOp2(y, x Expr, e LinearExpr) Expr {
	return r.swap(Op2(x, y, e))
}

func (r *replacer) EvalOp3(z, y, x Expr, e LinearExpr) Expr {
	return r.swap(Op3(x, y, z, e))
}
