package pipeline

const analysisSystemPrompt = `You are a networking researcher who reads systems and networking papers and prepares them for implementation. Return a single JSON object. Be precise and factual. Do not invent details that are not present in the paper.`

const analysisPromptTemplate = `Analyze the paper below and return a JSON object with exactly these fields:

{
  "title": "paper title",
  "authors": ["author names"],
  "summary": "3-5 sentence summary of the problem, approach and results",
  "concepts": {
    "key_concepts": ["key networking concepts, algorithms and protocols"],
    "innovations": ["contributions and what is new"],
    "technical_details": "parameters, settings and technical specifics"
  },
  "architecture": {
    "overview": "components and how they interact",
    "data_flow": "how data moves through the system",
    "control_flow": "how control information moves through the system",
    "key_mechanisms": "detailed description of the key mechanisms"
  },
  "implementation": {
    "key_algorithms": ["algorithms that must be implemented"],
    "python_requirements": "what a Python implementation must get right",
    "ns3_requirements": "what an ns-3 simulation must get right",
    "p4_requirements": "what a P4 data plane must get right",
    "dependencies": ["libraries and tools an implementation needs"]
  }
}
%s
Paper text:

%s`

const generationSystemPrompt = `You are an expert network software engineer who turns research papers into working code. Return a single JSON object. Code must be complete and runnable, not pseudo-code.`

const generationPromptTemplate = `Write a %s implementation of the paper described below. Return a JSON object with exactly this shape:

%s

Paper analysis:
%s

%s implementation notes:
%s
%s`

const retrievedContextTemplate = `
Related knowledge (use when relevant):
%s`

const correctnessSystemPrompt = `You review generated implementations of research papers for correctness. Return a single JSON object. Score strictly on a 0-10 scale.`

const correctnessPromptTemplate = `Evaluate how correctly this %s code implements the paper. Return a JSON object with exactly these fields:

{
  "score": 0,
  "analysis": "how completely and faithfully the paper's key points are implemented",
  "issues": ["each concrete problem found"]
}

Paper analysis:
%s

Code:
%s`

const performanceSystemPrompt = `You estimate the runtime behaviour of generated network code. Return a single JSON object. Score strictly on a 0-10 scale.`

const performancePromptTemplate = `Estimate the performance of this %s code relative to what the paper describes. Return a JSON object with exactly these fields:

{
  "score": 0,
  "estimation": "expected performance and how it compares to the paper's evaluation",
  "bottlenecks": ["each likely bottleneck"],
  "optimization": "concrete optimization suggestions"
}

Paper evaluation context:
%s

Code:
%s`

const improvementsSystemPrompt = `You recommend improvements to generated implementations of research papers. Return a single JSON object. Score strictly on a 0-10 scale, where 10 means little is left to improve.`

const improvementsPromptTemplate = `Given the correctness and performance reviews below, recommend improvements to this %s code. Return a JSON object with exactly these fields:

{
  "score": 0,
  "areas": "key areas that need improvement",
  "suggestions": ["each specific suggestion"],
  "priorities": ["suggestions ordered from most to least important"]
}

Correctness review:
%s

Performance review:
%s

Code:
%s`

const refinementSystemPrompt = `You refine generated implementations of research papers based on review feedback. Return a single JSON object containing the full refined code, never a diff.`

const refinementPromptTemplate = `Refine this %s implementation. First plan the changes, then apply them. Return a JSON object with exactly these fields:

{
  "plan": "refinement plan: what to change and why, in priority order",
  "changelog": "what was actually changed",
  "implementation": {"code": "the complete refined code"}%s
}

Only include auxiliary fields that you changed.

Current code:
%s

Correctness review:
%s

Performance review:
%s

Improvement review:
%s

User feedback:
%s`

const chatSystemPrompt = `You are a research assistant helping a user turn a networking paper into code. Answer using the provided knowledge when it is relevant and say so when it is not sufficient. Be concise.`

const chatPromptTemplate = `Question: %s
%s
%s`
