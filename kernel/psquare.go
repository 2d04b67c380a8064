package kernel

// pSquareQuantile estimates a single quantile of a data stream in O(1)
// time and space per update, using the P² algorithm (Jain & Chlamtac,
// 1985). It never stores the samples themselves, which matters on a
// microcontroller-class target where the metrics collector must not
// allocate after startup.
type pSquareQuantile struct {
	p           float64
	q           [5]float64
	n           [5]int
	np          [5]float64
	dn          [5]float64
	initialized bool
	count       int
	initBuffer  [5]float64
	max         float64
}

func newPSquareQuantile(p float64) *pSquareQuantile {
	return &pSquareQuantile{p: p}
}

// Update feeds one new sample into the estimator.
func (pq *pSquareQuantile) Update(x float64) {
	pq.count++
	if x > pq.max || pq.count == 1 {
		pq.max = x
	}

	if !pq.initialized {
		pq.initBuffer[pq.count-1] = x
		if pq.count == 5 {
			pq.initialize()
		}
		return
	}

	var k int
	switch {
	case x < pq.q[0]:
		pq.q[0] = x
		k = 0
	case x >= pq.q[4]:
		pq.q[4] = x
		k = 3
	default:
		for i := 1; i < 5; i++ {
			if x < pq.q[i] {
				k = i - 1
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		pq.n[i]++
	}
	for i := 0; i < 5; i++ {
		pq.np[i] += pq.dn[i]
	}

	for i := 1; i < 4; i++ {
		d := pq.np[i] - float64(pq.n[i])
		if (d >= 1 && pq.n[i+1]-pq.n[i] > 1) || (d <= -1 && pq.n[i-1]-pq.n[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}
			qNew := pq.parabolic(i, float64(sign))
			if pq.q[i-1] < qNew && qNew < pq.q[i+1] {
				pq.q[i] = qNew
			} else {
				pq.q[i] = pq.linear(i, float64(sign))
			}
			pq.n[i] += sign
		}
	}
}

func (pq *pSquareQuantile) initialize() {
	// Insertion sort the five bootstrap samples; five elements never
	// warrants anything fancier.
	buf := pq.initBuffer
	for i := 1; i < 5; i++ {
		v := buf[i]
		j := i - 1
		for j >= 0 && buf[j] > v {
			buf[j+1] = buf[j]
			j--
		}
		buf[j+1] = v
	}
	pq.q = buf
	pq.n = [5]int{1, 2, 3, 4, 5}
	pq.dn = [5]float64{0, pq.p / 2, pq.p, (1 + pq.p) / 2, 1}
	pq.np = [5]float64{1, 1 + 2*pq.p, 1 + 4*pq.p, 3 + 2*pq.p, 5}
	pq.initialized = true
}

func (pq *pSquareQuantile) parabolic(i int, d float64) float64 {
	return pq.q[i] + d/float64(pq.n[i+1]-pq.n[i-1])*(
		float64(pq.n[i]-pq.n[i-1]+int(d))*(pq.q[i+1]-pq.q[i])/float64(pq.n[i+1]-pq.n[i])+
			float64(pq.n[i+1]-pq.n[i]-int(d))*(pq.q[i]-pq.q[i-1])/float64(pq.n[i]-pq.n[i-1]))
}

func (pq *pSquareQuantile) linear(i int, d float64) float64 {
	sign := int(d)
	return pq.q[i] + d*(pq.q[i+sign]-pq.q[i])/float64(pq.n[i+sign]-pq.n[i])
}

// Quantile returns the current quantile estimate. Before five samples
// have been seen it returns the maximum observed sample so far.
func (pq *pSquareQuantile) Quantile() float64 {
	if !pq.initialized {
		if pq.count == 0 {
			return 0
		}
		return pq.max
	}
	return pq.q[2]
}

func (pq *pSquareQuantile) Count() int { return pq.count }

func (pq *pSquareQuantile) Max() float64 { return pq.max }

// pSquareMultiQuantile tracks several quantiles of the same stream with a
// single pass, sharing the sample count and running max across
// estimators.
type pSquareMultiQuantile struct {
	estimators []*pSquareQuantile
	count      int
	sum        float64
	max        float64
}

func newPSquareMultiQuantile(ps ...float64) *pSquareMultiQuantile {
	m := &pSquareMultiQuantile{estimators: make([]*pSquareQuantile, len(ps))}
	for i, p := range ps {
		m.estimators[i] = newPSquareQuantile(p)
	}
	return m
}

func (m *pSquareMultiQuantile) Update(x float64) {
	m.count++
	m.sum += x
	if x > m.max || m.count == 1 {
		m.max = x
	}
	for _, e := range m.estimators {
		e.Update(x)
	}
}

func (m *pSquareMultiQuantile) Quantile(i int) float64 {
	if i < 0 || i >= len(m.estimators) {
		return 0
	}
	return m.estimators[i].Quantile()
}

func (m *pSquareMultiQuantile) Count() int { return m.count }

func (m *pSquareMultiQuantile) Max() float64 { return m.max }

func (m *pSquareMultiQuantile) Mean() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

func (m *pSquareMultiQuantile) Reset() {
	for _, e := range m.estimators {
		*e = *newPSquareQuantile(e.p)
	}
	m.count = 0
	m.sum = 0
	m.max = 0
}
