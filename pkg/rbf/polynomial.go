package rbf

import "math"

// PolynomialTerms は dim 次元で総次数 degree 以下の単項式の数 C(dim+degree, degree) を返す。
// 指数ベクトルを列挙せずに計算する。degree が負または dim が1未満の場合は0、
// int に収まらない場合は math.MaxInt を返す。
func PolynomialTerms(dim, degree int) int {
	if degree < 0 || dim < 1 {
		return 0
	}
	// C(dim+degree, k) を k = 1..degree で順に求める。各段階の値は整数になる。
	terms := 1
	for k := 1; k <= degree; k++ {
		n := dim + k
		if n < 0 || terms > math.MaxInt/n {
			return math.MaxInt
		}
		terms = terms * n / k
	}
	return terms
}

// monomials は dim 次元で総次数 degree 以下の単項式の指数ベクトルを
// 次数の昇順に列挙する。degree が負の場合は nil を返す。
func monomials(dim, degree int) [][]int {
	if degree < 0 || dim < 1 {
		return nil
	}
	var out [][]int
	for total := 0; total <= degree; total++ {
		out = append(out, exponentsOfDegree(dim, total)...)
	}
	return out
}

func exponentsOfDegree(dim, total int) [][]int {
	if dim == 1 {
		return [][]int{{total}}
	}
	var out [][]int
	for first := total; first >= 0; first-- {
		for _, rest := range exponentsOfDegree(dim-1, total-first) {
			e := make([]int, 0, dim)
			e = append(e, first)
			e = append(e, rest...)
			out = append(out, e)
		}
	}
	return out
}

// monomial は点 x における指数ベクトル exp の単項式の値を返す。
func monomial(x []float64, exp []int) float64 {
	v := 1.0
	for i, p := range exp {
		for range p {
			v *= x[i]
		}
	}
	return v
}
