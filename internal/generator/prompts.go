package generator

import "fmt"

const schemaDescription = `A UTDL plan is a JSON object with fields:
- spec_version: must be the literal string "0.1"
- meta: {id, name, description?, tags?, created_at}
- config: {base_url, timeout_ms, global_headers?, variables?}
- steps: ordered array of Step, each:
  - id: non-empty string, unique across the plan
  - action: "http_request" or "wait"
  - description?: string
  - depends_on?: array of other step ids (must form a DAG, no self-reference)
  - params: object; for http_request: {method, path, body?, headers?, query?}; for wait: {duration_ms}
  - assertions?: array of {type: status_code|json_body|header|latency|status_range, operator: eq|neq|lt|gt|contains, value, path?}
  - extract?: array of {source: body|header, path, target}
  - recovery_policy?: {strategy: retry|fail_fast|ignore, max_attempts, backoff_ms, backoff_factor}

Return ONLY the JSON object. No prose, no markdown fences unless you choose
to wrap the JSON in a single \`\`\`json code block.`

const systemPrompt = `You are an expert API test engineer. You generate UTDL test plans
(a JSON test-plan format) from natural-language requirements.

` + schemaDescription

func userPrompt(requirement, baseURL string) string {
	return fmt.Sprintf(`Requirement:
%s

Base URL under test: %s

Generate a UTDL plan that exercises this requirement.`, requirement, baseURL)
}

func correctionPrompt(diagnostics, previousJSON string) string {
	return fmt.Sprintf(`The previous UTDL plan failed validation with these errors:

%s

Previous JSON:
%s

Fix the plan and return the corrected JSON object only.`, diagnostics, previousJSON)
}
