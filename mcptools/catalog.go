// Package mcptools exposes the gateway's fixed tool catalog over the Model
// Context Protocol. Most tools are prompt-shaped wrappers around the
// generation engine; each carries its own system prompt and forwards the
// provider/model selection knobs unchanged.
package mcptools

// toolDef is one prompt-wrapper entry of the catalog.
type toolDef struct {
	Name         string
	Description  string
	SystemPrompt string
}

// challengePrefix is prepended to the prompt of the challenge tool. The
// prefixed text is forwarded to the upstream as-is.
const challengePrefix = "CRITICAL REASSESSMENT - Do not automatically agree:\n\n"

// promptTools are the single-shot generation tools. list-ai-models,
// challenge, and consensus have bespoke handlers and are not in this table.
var promptTools = []toolDef{
	{
		Name:        "deep-reasoning",
		Description: "Use advanced reasoning for complex problems requiring multi-step analysis.",
		SystemPrompt: "You are an expert reasoning assistant. Think through the problem " +
			"step by step, consider alternatives, and state your confidence in the conclusion.",
	},
	{
		Name:        "investigate",
		Description: "Investigate a topic thoroughly, surfacing evidence and open questions.",
		SystemPrompt: "You are an investigator. Gather the relevant facts, separate evidence " +
			"from speculation, and list what remains unknown.",
	},
	{
		Name:        "research",
		Description: "Research a topic and synthesize findings with sources where possible.",
		SystemPrompt: "You are a research assistant. Survey the topic, synthesize the findings, " +
			"and cite sources when you can.",
	},
	{
		Name:        "analyze-code",
		Description: "Analyze code structure, architecture, and behavior.",
		SystemPrompt: "You are a senior engineer analyzing code. Describe structure and data flow, " +
			"call out risky constructs, and keep findings tied to specific lines.",
	},
	{
		Name:        "review-code",
		Description: "Review code for correctness, style, and maintainability issues.",
		SystemPrompt: "You are a code reviewer. Report defects first, then style and " +
			"maintainability issues, each with severity and a suggested fix.",
	},
	{
		Name:        "debug-issue",
		Description: "Debug an issue from symptoms, logs, and code context.",
		SystemPrompt: "You are debugging a live issue. Form hypotheses from the symptoms, rank " +
			"them by likelihood, and propose the cheapest experiment to discriminate between them.",
	},
	{
		Name:        "plan-feature",
		Description: "Plan the implementation of a feature across the codebase.",
		SystemPrompt: "You are planning a feature. Break it into ordered, independently testable " +
			"steps, and flag the ones with irreversible consequences.",
	},
	{
		Name:        "generate-docs",
		Description: "Generate documentation for code or APIs.",
		SystemPrompt: "You are a technical writer. Document behavior, parameters, and failure " +
			"modes; prefer examples over prose.",
	},
	{
		Name:        "planner",
		Description: "Break a task into an ordered, dependency-aware plan.",
		SystemPrompt: "You are a planner. Produce a numbered plan with explicit dependencies " +
			"between steps and a rough effort estimate per step.",
	},
	{
		Name:        "precommit",
		Description: "Validate a change set before committing.",
		SystemPrompt: "You are performing a pre-commit review of a diff. Check correctness, " +
			"missing tests, and accidental debug artifacts; answer with a go/no-go and reasons.",
	},
	{
		Name:        "secaudit",
		Description: "Audit code for security vulnerabilities.",
		SystemPrompt: "You are a security auditor. Look for injection, authentication, " +
			"authorization, and data-exposure flaws; rate each finding by severity and exploitability.",
	},
	{
		Name:        "tracer",
		Description: "Trace execution paths or dependencies through code.",
		SystemPrompt: "You are tracing code. Follow the requested entry point through calls and " +
			"data flow, and present the trace as an ordered path with file references.",
	},
}
