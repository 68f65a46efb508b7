package document

import (
	"errors"
	"time"
)

// Origin identifies which actor produced a mutation
type Origin string

const (
	OriginUser Origin = "user"
	OriginAI   Origin = "ai"
)

// Valid reports whether o is one of the two known mutation origins
func (o Origin) Valid() bool {
	return o == OriginUser || o == OriginAI
}

// ErrInvalidOrigin is returned by Set for an origin other than user or ai
var ErrInvalidOrigin = errors.New("invalid mutation origin")

// Document is the current source text and its revision
type Document struct {
	Source   string `json:"source"`
	Revision int64  `json:"revision"`
}

// Mutation describes one accepted replacement of the source text
type Mutation struct {
	Revision int64     `json:"revision"`
	Source   string    `json:"-"`
	Origin   Origin    `json:"origin"`
	At       time.Time `json:"at"`
}

// DefaultSource is the document a session starts with when the caller supplies none
const DefaultSource = `\documentclass{resume}
\usepackage[left=0.4 in,top=0.4 in,right=0.4 in,bottom=0.4 in]{geometry}
\name{Your Name}
\address{+00 0000000000}
\address{LinkedIn \\ GitHub \\ LeetCode \\ CodeChef}

\begin{document}

\begin{rSection}{Education}

{\bf B.Tech in Computer Science \& Engineering}, Your University
\hfill {Nov 2022 - June 2026}

CGPA: 8.27

\end{rSection}

% SKILLS SECTION
\begin{rSection}{SKILLS}

\begin{tabular}{ @{} >{\bfseries}l @{\hspace{6ex}} l }
Programming Languages & C, C++, Java, Python, JavaScript, TypeScript
\\
Software Engineering \& Automation & SDLC, Agile, DevOps, TDD, CI/CD, etc.
\\
DevOps \& Cloud & GitHub Actions, Kubernetes, AWS (EC2), Git, Linux
\\
Database & SQL, MongoDB, MySQL, PostgreSQL, SQLite
\end{tabular}

\end{rSection}

\end{document}
`
